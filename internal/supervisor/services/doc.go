// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package services adapts Parley components to suture.Service.
//
// Each wrapper translates a component's lifecycle into Serve(ctx) and
// implements fmt.Stringer so supervisor events name it:
//
//   - HTTPServerService: ListenAndServe plus graceful Shutdown
//   - WebSocketHubService: websocket.Hub.RunWithContext
//   - StoreGCService: periodic Badger value-log GC
//
// The wrappers depend on small interfaces rather than concrete types so
// they can be tested without a listener or a database.
package services
