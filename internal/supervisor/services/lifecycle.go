// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package services

import (
	"context"
	"fmt"
	"time"
)

// ShutdownService holds a running resource until ctx ends and then shuts
// it down with a fresh deadline.
type ShutdownService struct {
	name            string
	shutdown        func(ctx context.Context) error
	shutdownTimeout time.Duration
}

// NewShutdownService creates the wrapper. A non-positive timeout defaults
// to 10s.
func NewShutdownService(name string, shutdown func(ctx context.Context) error, timeout time.Duration) *ShutdownService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ShutdownService{name: name, shutdown: shutdown, shutdownTimeout: timeout}
}

// Serve blocks until ctx ends.
func (s *ShutdownService) Serve(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", s.name, err)
	}
	return ctx.Err()
}

func (s *ShutdownService) String() string {
	return s.name
}

// FuncService runs fn under a name.
type FuncService struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncService wraps fn.
func NewFuncService(name string, fn func(ctx context.Context) error) *FuncService {
	return &FuncService{name: name, fn: fn}
}

// Serve calls fn.
func (f *FuncService) Serve(ctx context.Context) error {
	return f.fn(ctx)
}

func (f *FuncService) String() string {
	return f.name
}
