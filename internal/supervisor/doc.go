// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package supervisor provides process supervision using suture v4.

Every long-running component is a suture.Service (Serve(ctx) error plus
String()) placed in one of four layers:

	RootSupervisor ("thessia")
	├── data-layer
	│   ├── queue-gc
	│   ├── reference-cache
	│   ├── worker-pool:killmails
	│   └── worker-pool:characters
	├── ingest-layer
	│   ├── source:redisq, source:feed
	│   ├── source:history, source:user
	│   └── source:delayed, source:war
	├── messaging-layer
	│   ├── nats-embedded (optional)
	│   ├── killmail-publisher
	│   ├── bus:<subject>
	│   ├── websocket-hub (gateway only)
	│   └── websocket-bridge (gateway only)
	└── api-layer
	    └── http-server

A crashed service is restarted with backoff by its own layer. Supervisor
events are logged through sutureslog into the zerolog logger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(pool)
	tree.AddIngestService(redisq)
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)

Cancelling ctx stops every layer; worker pools finish their in-flight job
within TreeConfig.ShutdownTimeout.
*/
package supervisor
