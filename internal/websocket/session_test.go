// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package websocket

import (
	"reflect"
	"strings"
	"testing"
)

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		state      SessionState
		frame      string
		wantNext   SessionState
		wantReply  string
		wantTopics []string
	}{
		{"subscribe", StateConnected, "10b,victim.90000001,region.10000002", StateSubscribed, MessageTypeSubscribed, []string{"10b", "victim.90000001", "region.10000002"}},
		{"spaces and duplicates", StateConnected, " all , all ,solo", StateSubscribed, MessageTypeSubscribed, []string{"all", "solo"}},
		{"resubscribe", StateSubscribed, "titan", StateSubscribed, MessageTypeSubscribed, []string{"titan"}},
		{"one bad topic rejects all", StateConnected, "10b,foo", StateConnected, MessageTypeError, nil},
		{"bad id", StateConnected, "victim.abc", StateConnected, MessageTypeError, nil},
		{"empty", StateConnected, "", StateConnected, MessageTypeError, nil},
		{"rejection keeps subscription", StateSubscribed, "bogus", StateSubscribed, MessageTypeError, nil},
		{"closed ignores input", StateClosed, "all", StateClosed, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dispatch(tt.state, tt.frame)
			if got.Next != tt.wantNext {
				t.Errorf("Next = %v, want %v", got.Next, tt.wantNext)
			}
			if got.Reply.Type != tt.wantReply {
				t.Errorf("Reply.Type = %q, want %q", got.Reply.Type, tt.wantReply)
			}
			if !reflect.DeepEqual(got.Topics, tt.wantTopics) {
				t.Errorf("Topics = %v, want %v", got.Topics, tt.wantTopics)
			}
			if tt.wantReply == MessageTypeSubscribed && !reflect.DeepEqual(got.Reply.Topics, tt.wantTopics) {
				t.Errorf("Reply.Topics = %v, want %v", got.Reply.Topics, tt.wantTopics)
			}
		})
	}
}

func TestDispatch_ErrorNamesBadTopics(t *testing.T) {
	got := Dispatch(StateConnected, "all,nope,system.x")
	if !strings.Contains(got.Reply.Message, "nope") || !strings.Contains(got.Reply.Message, "system.x") {
		t.Errorf("error message %q should name both bad topics", got.Reply.Message)
	}
}

func TestSessionState_String(t *testing.T) {
	for state, want := range map[SessionState]string{
		StateConnected:   "connected",
		StateSubscribed:  "subscribed",
		StateClosed:      "closed",
		SessionState(42): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestInfoMessage(t *testing.T) {
	data, err := MarshalMessage(InfoMessage())
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"type":"info"`, `"validTopics":[`, `"10b"`, `"victim.<id>"`} {
		if !strings.Contains(s, want) {
			t.Errorf("info message %s missing %s", s, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Set(3, []string{"10b", "victim.1"})
	r.Set(1, []string{"all"})
	r.Set(2, []string{"titan"})

	if got := r.Match([]string{"all", "10b", "5b"}); !reflect.DeepEqual(got, []uint64{1, 3}) {
		t.Errorf("Match = %v, want [1 3]", got)
	}
	if got := r.Match([]string{"nullsec"}); len(got) != 0 {
		t.Errorf("Match(nullsec) = %v, want none", got)
	}

	r.Set(3, []string{"nullsec"})
	if got := r.Topics(3); !reflect.DeepEqual(got, []string{"nullsec"}) {
		t.Errorf("Topics(3) = %v after replace", got)
	}

	r.Remove(1)
	if r.Len() != 2 || r.Topics(1) != nil {
		t.Errorf("Len = %d, Topics(1) = %v after remove", r.Len(), r.Topics(1))
	}
}

// Two registries never share state.
func TestRegistry_Isolated(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.Set(1, []string{"all"})
	if b.Len() != 0 {
		t.Error("registries share state")
	}
}
