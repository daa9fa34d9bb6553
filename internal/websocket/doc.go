// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package websocket is the client-facing gateway. It keeps live WebSocket
connections, each with a validated topic subscription, and delivers every
killmail from the bus to the connections whose subscriptions intersect the
killmail's topics.

Key Components:

  - Hub: owns the connection set and the subscription Registry, fans out
    deliveries
  - Registry: connection ID to topic set, injected into the Hub
  - Client: one connection with a read pump and a write pump
  - Dispatch: the pure session state machine driven by client frames
  - Bridge: consumes eventprocessor.Bus and feeds the Hub

Architecture:

	NATS subject ──► Bus ──► Bridge ──► Hub.Deliver
	                                      │
	                     Registry.Match(topics)
	                                      │
	               ┌──────────┬───────────┴─┬──────────┐
	               │ Client 1 │  Client 2   │ Client 3 │
	               └──────────┴─────────────┴──────────┘

Protocol:

On connect the server sends the vocabulary:

	{"type":"info","validTopics":["10b","5b","abyssal",...,"victim.<id>",...]}

The client answers with a comma-separated list, for example
"10b,victim.90000001,region.10000002". The server replies with either

	{"type":"subscribed","topics":["10b","victim.90000001","region.10000002"]}
	{"type":"error","message":"invalid topics: foo"}

A rejected list leaves the previous subscription untouched. A client may
send a new list at any time to replace its subscription. Killmails arrive as

	{"type":"killmail","data":{...}}

Session states:

	Connected ──valid list──► Subscribed ──valid list──► Subscribed
	    │                         │
	    └──────── close ──────────┴──────────► Closed

Slow clients whose send buffer is full are disconnected rather than
blocking delivery to everyone else.
*/
package websocket
