// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package api provides the HTTP surface of Parley: thin handlers over the
store that announce durable changes through the realtime router.

# Routes

	POST   /api/v1/auth/register
	POST   /api/v1/auth/login
	GET    /api/v1/me
	GET    /api/v1/stats
	GET    /api/v1/rooms
	POST   /api/v1/rooms
	GET    /api/v1/rooms/{roomID}
	PATCH  /api/v1/rooms/{roomID}                        roomUpdated
	GET    /api/v1/rooms/{roomID}/members
	POST   /api/v1/rooms/{roomID}/members
	GET    /api/v1/rooms/{roomID}/presence
	GET    /api/v1/rooms/{roomID}/messages?limit=
	POST   /api/v1/rooms/{roomID}/messages               newMessage
	PATCH  /api/v1/rooms/{roomID}/messages/{messageID}   messageUpdated
	DELETE /api/v1/rooms/{roomID}/messages/{messageID}   messageDeleted
	POST   /api/v1/users/{userID}/notify                 notification
	GET    /health/live, /health/ready, /metrics, /ws

Room routes pass through authz.Middleware, which resolves the caller's
durable role and checks it against the room policy.

# Responses

Every JSON body is a models.APIResponse envelope. Errors carry a stable
machine-readable code such as NOT_A_MEMBER, FORBIDDEN or VALIDATION_ERROR.
*/
package api
