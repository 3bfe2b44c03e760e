// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package models holds the domain types shared across the realtime core:
// media status buckets, actors, and the denormalized display payload carried
// on push events.
package models

import "time"

// MediaStatus is the moderation status of a media item. A media item occupies
// exactly one status bucket at a time.
type MediaStatus string

const (
	StatusPending      MediaStatus = "pending"
	StatusApproved     MediaStatus = "approved"
	StatusAutoApproved MediaStatus = "auto_approved"
	StatusRejected     MediaStatus = "rejected"
	StatusHidden       MediaStatus = "hidden"
)

// AllStatuses lists every status bucket in canonical order.
var AllStatuses = []MediaStatus{
	StatusPending,
	StatusApproved,
	StatusAutoApproved,
	StatusRejected,
	StatusHidden,
}

// Valid reports whether s is a known status bucket.
func (s MediaStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusAutoApproved, StatusRejected, StatusHidden:
		return true
	}
	return false
}

// Visible reports whether media in this status is shown to guests and
// photo-wall displays. Only approved and auto_approved cross the visibility
// boundary; pending/rejected/hidden are administrative states.
func (s MediaStatus) Visible() bool {
	return s == StatusApproved || s == StatusAutoApproved
}

// UserType identifies the semantics a realtime connection operates under.
type UserType string

const (
	UserTypeAdmin     UserType = "admin"
	UserTypeGuest     UserType = "guest"
	UserTypePhotowall UserType = "photowall-viewer"
)

// Valid reports whether u is a known user type.
func (u UserType) Valid() bool {
	switch u {
	case UserTypeAdmin, UserTypeGuest, UserTypePhotowall:
		return true
	}
	return false
}

// Actor identifies who performed a status transition.
type Actor struct {
	Name string `json:"name"`
	Type string `json:"type"` // admin, guest, system
}

// MediaPayload carries the denormalized display fields delivered with push
// events so consumers can render without a follow-up fetch.
type MediaPayload struct {
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Uploader     string `json:"uploader,omitempty"`
	MediaType    string `json:"media_type,omitempty"` // image, video
}

// MediaStatusRecord is one cached media item inside a status bucket.
type MediaStatusRecord struct {
	MediaID                 string       `json:"media_id"`
	CurrentStatus           MediaStatus  `json:"current_status"`
	Payload                 MediaPayload `json:"payload"`
	LastTransitionTimestamp time.Time    `json:"last_transition_timestamp"`
	TransitionActor         Actor        `json:"transition_actor"`
}

// MediaCounts tracks the number of cached items per status bucket.
type MediaCounts map[MediaStatus]int

// Clone returns an independent copy of the counts map.
func (c MediaCounts) Clone() MediaCounts {
	out := make(MediaCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total returns the number of items across all buckets.
func (c MediaCounts) Total() int {
	var n int
	for _, v := range c {
		n += v
	}
	return n
}
