// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package supervisor runs Parley's long-lived services under a suture v4
supervisor tree.

	parley
	├── data-layer
	│   └── store-gc        (Badger value-log GC)
	├── realtime-layer
	│   └── websocket-hub
	└── api-layer
	    └── http-server

Each layer has its own failure counter, so a crash-looping GC pass backs off
without touching live connections or the HTTP listener. Supervisor events go
through sutureslog into a *slog.Logger; main passes logging.NewSlogLogger()
so they land in the same zerolog stream as everything else.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewStoreGCService(st, cfg.Store.GCInterval, cfg.Store.GCRatio))
	tree.AddRealtimeService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

Cancel ctx to shut down. Services that do not stop within ShutdownTimeout
are listed by UnstoppedServiceReport.
*/
package supervisor
