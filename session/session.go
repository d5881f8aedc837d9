//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package session keeps per-conversation state between turns.
//
// The store is bounded: sessions idle past the TTL are dropped, and when
// the entry cap is hit the least recently used session is evicted.
package session

import (
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-toolmesh-go/graph"
	"trpc.group/trpc-go/trpc-toolmesh-go/log"
)

// Store defaults.
const (
	DefaultMaxEntries = 1000
	DefaultIdleTTL    = time.Hour
)

type entry struct {
	state    *graph.State
	lastUsed time.Time
}

// Store holds conversation state keyed by session id.
type Store struct {
	maxEntries int
	idleTTL    time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures the Store.
type Option func(*Store)

// WithMaxEntries bounds how many sessions are kept.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithIdleTTL sets how long an untouched session survives.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// NewStore creates a session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		maxEntries: DefaultMaxEntries,
		idleTTL:    DefaultIdleTTL,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the state for the session, creating it on first use. Access
// refreshes the session's idle clock.
func (s *Store) Get(sessionID string) *graph.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	if e, ok := s.entries[sessionID]; ok {
		e.lastUsed = s.now()
		return e.state
	}
	if len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	state := graph.NewState()
	s.entries[sessionID] = &entry{state: state, lastUsed: s.now()}
	return state
}

// Delete removes a session.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	return len(s.entries)
}

// sweep drops sessions idle past the TTL. Caller holds the lock.
func (s *Store) sweep() {
	cutoff := s.now().Add(-s.idleTTL)
	for id, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			log.Debugf("session: expiring idle session %s", id)
			delete(s.entries, id)
		}
	}
}

// evictOldest removes the least recently used session. Caller holds the
// lock.
func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.entries {
		if oldestID == "" || e.lastUsed.Before(oldest) {
			oldestID = id
			oldest = e.lastUsed
		}
	}
	if oldestID != "" {
		log.Debugf("session: evicting session %s to stay under %d entries", oldestID, s.maxEntries)
		delete(s.entries, oldestID)
	}
}
