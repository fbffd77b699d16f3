// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package main is the entry point for the Parley server.

Parley hosts chat rooms: a REST API for accounts, rooms, memberships and
message history, plus a websocket channel that pushes message, typing and
presence events to room participants.

# Application Architecture

	parley
	├── data-layer
	│   └── store-gc        (Badger value-log GC)
	├── realtime-layer
	│   └── websocket-hub
	└── api-layer
	    └── http-server

Initialization order:

 1. Configuration: koanf v2 (defaults, optional YAML, environment)
 2. Logging: zerolog, JSON or console
 3. Store: BadgerDB, on disk or in memory
 4. Authentication: HS256 JWT
 5. Authorization: casbin room-role policy (embedded or POLICY_PATH)
 6. Realtime router and websocket hub
 7. HTTP router: chi with CORS, httprate and Prometheus middleware
 8. Supervisor tree: suture v4

# Configuration

Common environment variables:

	HTTP_PORT            listener port (default 8080)
	JWT_SECRET           HMAC secret, at least 32 characters
	STORE_PATH           Badger directory
	STORE_IN_MEMORY      true to keep everything in memory
	CORS_ORIGINS         comma-separated allowed origins
	TYPING_TIMEOUT       auto-expiry for typing indicators
	LOG_LEVEL            trace, debug, info, warn, error
	CONFIG_PATH          optional YAML file

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains for up to
SHUTDOWN_TIMEOUT, the hub closes every websocket, and the store is closed
last.

# Example Usage

	export JWT_SECRET=$(openssl rand -base64 48)
	export STORE_PATH=/var/lib/parley
	./parley
*/
package main
