// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package localstore persists session state that must survive restarts: the
// auth credential, the path to return to after re-auth, and connection hints
// used to warm up the next start.
package localstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	credentialKey   = "auth:credential"
	redirectKey     = "auth:redirect_path"
	connHintsPrefix = "conn:hints:"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("localstore: not found")

// Credential is the stored auth material for one user.
type Credential struct {
	Token      string          `json:"token,omitempty"`
	ShareToken string          `json:"shareToken,omitempty"`
	UserType   models.UserType `json:"userType"`
	GuestName  string          `json:"guestName,omitempty"`
	StoredAt   time.Time       `json:"storedAt"`
}

// ConnectionHints remembers how the last session for an event ended, so the
// next start can decide whether to reconnect eagerly.
type ConnectionHints struct {
	EventID         string          `json:"eventId"`
	UserType        models.UserType `json:"userType"`
	LastConnectedAt time.Time       `json:"lastConnectedAt"`
	CleanShutdown   bool            `json:"cleanShutdown"`
}

// Store is a BadgerDB-backed key/value store. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = newBadgerLogger()
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open localstore: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used by tests and by photowall
// viewers that never persist credentials.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = newBadgerLogger()
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory localstore: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCredential stores the credential, stamping StoredAt.
func (s *Store) SaveCredential(cred Credential) error {
	cred.StoredAt = time.Now()
	return s.setJSON(credentialKey, cred)
}

// Credential returns the stored credential. A credential whose bearer token
// has already expired is treated as absent: connecting with it would only
// bounce off the server with an auth error, so it is deleted on read.
func (s *Store) Credential() (*Credential, error) {
	var cred Credential
	if err := s.getJSON(credentialKey, &cred); err != nil {
		return nil, err
	}

	if cred.Token != "" && tokenExpired(cred.Token) {
		logging.Debug().Msg("stored token expired, discarding credential")
		if err := s.DeleteCredential(); err != nil {
			logging.Warn().Err(err).Msg("delete expired credential")
		}
		return nil, ErrNotFound
	}
	return &cred, nil
}

// DeleteCredential removes the stored credential.
func (s *Store) DeleteCredential() error {
	return s.delete(credentialKey)
}

// SaveRedirectPath stores where to resume after the user re-authenticates.
func (s *Store) SaveRedirectPath(path string) error {
	return s.set(redirectKey, []byte(path))
}

// TakeRedirectPath returns and clears the stored redirect path. The clear
// happens even when the caller never navigates; a stale redirect is worse
// than none.
func (s *Store) TakeRedirectPath() (string, error) {
	raw, err := s.get(redirectKey)
	if err != nil {
		return "", err
	}
	if err := s.delete(redirectKey); err != nil {
		return "", err
	}
	return string(raw), nil
}

// SaveConnectionHints records how the session for eventID ended.
func (s *Store) SaveConnectionHints(hints ConnectionHints) error {
	return s.setJSON(connHintsPrefix+hints.EventID, hints)
}

// ConnectionHints returns hints for eventID.
func (s *Store) ConnectionHints(eventID string) (*ConnectionHints, error) {
	var hints ConnectionHints
	if err := s.getJSON(connHintsPrefix+eventID, &hints); err != nil {
		return nil, err
	}
	return &hints, nil
}

// tokenExpired reports whether the JWT's exp claim has passed. Signature
// verification is the server's job; only the expiry is inspected here, and a
// token that cannot be parsed at all is treated as expired.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

func (s *Store) set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *Store) setJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.set(key, raw)
}

func (s *Store) getJSON(key string, v interface{}) error {
	raw, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
