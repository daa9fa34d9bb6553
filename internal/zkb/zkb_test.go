// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package zkb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

func TestParseRedisQ(t *testing.T) {
	t.Parallel()

	ref, err := ParseRedisQ([]byte(`{"package":{"killID":130000001,"zkb":{"hash":"deadbeef","totalValue":12.5}}}`))
	if err != nil {
		t.Fatalf("ParseRedisQ() error = %v", err)
	}
	if ref == nil || ref.KillmailID != 130000001 || ref.Hash != "deadbeef" {
		t.Errorf("ref = %+v", ref)
	}

	ref, err = ParseRedisQ([]byte(`{"package":null}`))
	if err != nil || ref != nil {
		t.Errorf("empty package: ref = %+v, err = %v", ref, err)
	}

	if _, err := ParseRedisQ([]byte(`{"package":{"killID":1,"zkb":{}}}`)); err == nil {
		t.Error("package without hash should be rejected")
	}
}

func TestRedisQPoll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("queueID") != "thessia" {
			t.Errorf("queueID = %q", r.URL.Query().Get("queueID"))
		}
		_, _ = w.Write([]byte(`{"package":{"killID":5,"zkb":{"hash":"h5"}}}`))
	}))
	defer srv.Close()

	c := NewRedisQClient(config.ZKBConfig{RedisQURL: srv.URL, QueueID: "thessia"}, time.Millisecond)
	ref, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if ref == nil || ref.KillmailID != 5 {
		t.Errorf("ref = %+v", ref)
	}
}

func TestHistoryFetchDay(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/history/20260301.json":
			_, _ = w.Write([]byte(`{"3":"c","1":"a","2":"b","bogus":"x","4":""}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHistoryClient(config.ZKBConfig{HistoryURL: srv.URL + "/api/history/"})
	refs, err := c.FetchDay(context.Background(), time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay() error = %v", err)
	}
	want := []models.KillmailRef{{KillmailID: 1, Hash: "a"}, {KillmailID: 2, Hash: "b"}, {KillmailID: 3, Hash: "c"}}
	if len(refs) != len(want) {
		t.Fatalf("refs = %+v", refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %+v, want %+v", i, refs[i], want[i])
		}
	}

	refs, err = c.FetchDay(context.Background(), time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(refs) != 0 {
		t.Errorf("missing day: refs = %v, err = %v", refs, err)
	}
}

func TestDays(t *testing.T) {
	t.Parallel()

	days := Days(time.Date(2026, 2, 27, 23, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC))
	got := make([]string, len(days))
	for i, d := range days {
		got[i] = d.Format(DayFormat)
	}
	if strings.Join(got, ",") != "20260301,20260228,20260227" {
		t.Errorf("Days() = %v", got)
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	kill := []byte(`{"action":"littlekill","killID":42,"hash":"abc","url":"https://zkillboard.com/kill/42/"}`)

	state, ref, err := Dispatch(Connected, kill)
	if err != nil || ref != nil || state != Connected {
		t.Errorf("before subscribe: state=%v ref=%v err=%v", state, ref, err)
	}

	state, ref, err = Dispatch(Subscribed, kill)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if state != Subscribed || ref == nil || ref.KillmailID != 42 || ref.Hash != "abc" {
		t.Errorf("state=%v ref=%+v", state, ref)
	}

	if _, ref, err := Dispatch(Subscribed, []byte(`{"action":"tqStatus","tqStatus":"ONLINE"}`)); ref != nil || err != nil {
		t.Errorf("other actions should be ignored: ref=%v err=%v", ref, err)
	}
	if _, _, err := Dispatch(Subscribed, []byte(`not json`)); err == nil {
		t.Error("malformed frame should error")
	}
	if _, _, err := Dispatch(Subscribed, []byte(`{"action":"littlekill","killID":42}`)); err == nil {
		t.Error("littlekill without hash should error")
	}
}

func TestFeedSubscribesAndReconnects(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	var connections atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		_, msg, err := conn.ReadMessage()
		if err != nil || string(msg) != string(SubscribeMessage) {
			t.Errorf("subscribe message = %q, err = %v", msg, err)
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"littlekill","killID":7,"hash":"h7"}`))
		// Drop the connection to force a reconnect.
	}))
	defer srv.Close()

	feed := NewFeed(config.ZKBConfig{
		WebSocketURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refs := make(chan models.KillmailRef, 8)
	done := make(chan error, 1)
	go func() {
		done <- feed.Run(ctx, func(_ context.Context, ref models.KillmailRef) {
			select {
			case refs <- ref:
			default:
			}
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case ref := <-refs:
			if ref.KillmailID != 7 {
				t.Errorf("ref = %+v", ref)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for killstream event")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if got := connections.Load(); got < 2 {
		t.Errorf("expected a reconnect, saw %d connections", got)
	}
}
