// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package models

import "errors"

// ErrNotFound is wrapped by every lookup that finds no record.
var ErrNotFound = errors.New("not found")
