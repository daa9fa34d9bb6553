// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestRecordDiscovery(t *testing.T) {
	before := testutil.ToFloat64(SourceDiscovered.WithLabelValues("test-source", "new"))
	RecordDiscovery("test-source", true)
	RecordDiscovery("test-source", false)

	if got := testutil.ToFloat64(SourceDiscovered.WithLabelValues("test-source", "new")); got != before+1 {
		t.Errorf("new discoveries = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(SourceDiscovered.WithLabelValues("test-source", "known")); got < 1 {
		t.Errorf("known discoveries = %v, want >= 1", got)
	}
}

func TestRecordJob(t *testing.T) {
	RecordJob("test-queue", 10*time.Millisecond, nil)
	RecordJob("test-queue", 20*time.Millisecond, errors.New("boom"))

	var m io_prometheus_client.Metric
	if err := JobDuration.WithLabelValues("test-queue", "failure").(prometheus.Histogram).Write(&m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("failure sample count = %d, want 1", got)
	}
}

func TestRecordExternalRequest(t *testing.T) {
	RecordExternalRequest("test-api", "200", 5*time.Millisecond)
	if got := testutil.ToFloat64(ExternalRequests.WithLabelValues("test-api", "200")); got != 1 {
		t.Errorf("external requests = %v, want 1", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	RecordHTTPRequest("GET", "/test", "200", time.Millisecond)
	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/test", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}
