// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

/*
Package supervisor runs the long-lived parts of the process under a suture v4
supervisor tree.

	highscore
	├── store-layer
	│   ├── duckdb-checkpoint   (database.driver=duckdb)
	│   └── badger-gc           (kv.backend=badger)
	├── cache-layer
	│   └── kv-health           (any remote tier)
	└── api-layer
	    └── http-server

Each layer restarts its own services with suture's backoff, so a failing
maintenance task never restarts the HTTP server. Supervisor events go to
zerolog through logging.NewSlogLogger and sutureslog.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)

The service wrappers live in the services subpackage.
*/
package supervisor
