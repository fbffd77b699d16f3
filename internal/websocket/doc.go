// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package websocket is the push-channel transport for the realtime router.

It uses gorilla/websocket with one Client per connection and a Hub that
owns client lifetimes for shutdown and connection counting.

Connection flow:

 1. Handler checks the Origin header against the configured CORS origins
    and upgrades the request.
 2. The bearer token is taken from the Authorization header, falling back
    to the token query parameter, and passed to realtime.Router.Connect.
    A failure is reported as a single error frame followed by a normal
    close.
 3. readPump decodes frames into the router under a per-connection
    golang.org/x/time/rate limiter; writePump encodes outbound events and
    sends pings every 90% of the pong wait.
 4. When either pump exits, the router tears the session down.

Frames are JSON objects of the form:

	{"event":"joinRoom","data":{"roomId":"..."}}

Send never blocks: when a client's buffer is full the event is dropped and
counted in websocket_errors_total{error_type="buffer_full"}.
*/
package websocket
