// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package main

import (
	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/database"
	"github.com/EVE-KILL/Thessia-sub001/internal/esi"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
	"github.com/EVE-KILL/Thessia-sub001/internal/sources"
	"github.com/EVE-KILL/Thessia-sub001/internal/supervisor"
	"github.com/EVE-KILL/Thessia-sub001/internal/tokens"
	"github.com/EVE-KILL/Thessia-sub001/internal/zkb"
)

type sourceDeps struct {
	db      *database.DB
	queue   *queue.Queue
	esi     *esi.Client
	sso     *esi.SSOClient
	redisq  *zkb.RedisQClient
	feed    *zkb.Feed
	history *zkb.HistoryClient
}

// addSources registers every enabled source adapter with the ingest layer.
// The long-poll and feed adapters share one seen cache.
func addSources(tree *supervisor.SupervisorTree, cfg *config.Config, d sourceDeps) {
	sc := cfg.Sources
	seen := sources.NewSeenCache()
	enabled := 0

	if sc.RedisQEnabled {
		tree.AddIngestService(sources.NewRealtime(d.redisq, d.db, d.queue, seen, sc.RedisQInterval))
		enabled++
	}
	if sc.FeedEnabled {
		tree.AddIngestService(sources.NewFeed(d.feed, d.db, d.queue, seen))
		enabled++
	}
	if sc.HistoryEnabled {
		tree.AddIngestService(sources.NewHistory(d.history, d.db, d.queue, sc.HistoryDays, sc.HistoryInterval))
		enabled++
	}
	if sc.UserPollEnabled {
		keeper := tokens.NewManager(d.db, d.sso, sc.TokenRefreshAhead)
		tree.AddIngestService(sources.NewUserPoll(d.db, d.esi, keeper, d.db, d.queue, sc.UserPollInterval, sc.UserStaleAfter))
		enabled++
	}
	if sc.DelayedEnabled {
		tree.AddIngestService(sources.NewDelayed(d.db, d.queue, sc.DelayedInterval))
		enabled++
	}
	if sc.WarsEnabled {
		tree.AddIngestService(sources.NewWars(d.esi, d.db, d.queue, sc.WarIDs, sc.WarsInterval))
		enabled++
	}

	if enabled == 0 {
		logging.Warn().Msg("No source adapters enabled, only previously queued jobs will be processed")
		return
	}
	logging.Info().
		Bool("redisq", sc.RedisQEnabled).
		Bool("feed", sc.FeedEnabled).
		Bool("history", sc.HistoryEnabled).
		Bool("user_poll", sc.UserPollEnabled).
		Bool("delayed", sc.DelayedEnabled).
		Bool("wars", sc.WarsEnabled).
		Msg("Source adapters added to supervisor tree")
}
