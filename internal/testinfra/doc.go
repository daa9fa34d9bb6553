// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package testinfra provides container-backed infrastructure for integration
// tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// # NATS Container
//
// NATSContainer runs a real core NATS server so the watermill publisher,
// subscriber and bus deduplication are exercised over the network rather
// than through the in-process gochannel used by unit tests:
//
//	nats, err := testinfra.NewNATSContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	testinfra.CleanupContainer(t, nats.Container)
//
// Tests are skipped when Docker is unavailable or with -short.
package testinfra
