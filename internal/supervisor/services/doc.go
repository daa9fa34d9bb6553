// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package services adapts components whose lifecycle is not already
Serve(ctx) error to suture.Service.

  - HTTPServerService: ListenAndServe / Shutdown
  - ShutdownService: resources started at construction that only need an
    orderly Shutdown, such as the embedded NATS server or a publisher
  - FuncService: a named func(ctx) error, for loops like queue GC and
    reference cache expiry

Components that already implement Serve and String (worker pools, source
adapters, the gateway hub, the bus) are added to the tree directly.
*/
package services
