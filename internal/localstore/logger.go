// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package localstore

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/framewall/framewall/internal/logging"
)

// badgerLogger routes Badger's internal logging through zerolog. Badger is
// chatty at info level, so its info output is demoted to debug.
type badgerLogger struct{}

func newBadgerLogger() badger.Logger {
	return badgerLogger{}
}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: %s", trimf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: %s", trimf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: %s", trimf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: %s", trimf(format, args...))
}

func trimf(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
