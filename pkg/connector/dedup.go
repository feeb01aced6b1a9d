// Copyright 2024-2026 Aiku AI

package connector

import (
	"sync"
	"time"
)

// echoEntry is the pending outbound send for one channel. At most one
// entry exists per channel at a time; outbound sends are sequential per
// conversation, so a second lock before unlock indicates a retry and
// replaces the first.
type echoEntry struct {
	sender  string
	content string
	id      string
	pending bool
}

// echoTracker suppresses echoes: a message this bridge just sent on behalf
// of the Matrix side may be reflected back on the inbound stream, and
// without suppression it would be delivered twice. Lock, Unlock and Dedupe
// are serialized on one mutex because the outbound and inbound paths run
// on independent goroutines.
type echoTracker struct {
	mu      sync.Mutex
	entries map[string]*echoEntry
}

func newEchoTracker() *echoTracker {
	return &echoTracker{entries: make(map[string]*echoEntry)}
}

// Lock registers a pending outbound send for the channel. A prior entry
// for the same channel is replaced, last writer wins.
func (t *echoTracker) Lock(channel, sender, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[channel] = &echoEntry{
		sender:  sender,
		content: content,
		pending: true,
	}
}

// Unlock finalizes the pending entry with the id the send produced. An
// empty id leaves the entry matchable by content only. Unlocking a channel
// with no pending entry is a no-op.
func (t *echoTracker) Unlock(channel, sender, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[channel]
	if !ok || entry.sender != sender {
		return
	}
	entry.id = id
	entry.pending = false
}

// Discard drops the pending entry for a channel. Used when the send
// failed: no echo will ever arrive, and a leftover entry would suppress
// the next genuine inbound message with the same content. Discarding a
// channel with no entry, or someone else's entry, is a no-op.
func (t *echoTracker) Discard(channel, sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[channel]
	if !ok || entry.sender != sender {
		return
	}
	delete(t.entries, channel)
}

// Dedupe reports whether an inbound event is the echo of a tracked send
// and should be suppressed. Entries are single use: a match consumes the
// entry so a second identical inbound message is delivered normally. Any
// internal inconsistency fails open (returns false) rather than dropping a
// genuine remote message.
func (t *echoTracker) Dedupe(channel, sender, id, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[channel]
	if !ok || entry == nil || entry.sender != sender {
		return false
	}
	idMatch := id != "" && entry.id != "" && id == entry.id
	if idMatch || content == entry.content {
		delete(t.entries, channel)
		return true
	}
	return false
}

// expiringSet is a set of strings whose members vanish after a fixed
// window. Used to bound the memory of the recently-redacted message id
// record on a session.
type expiringSet struct {
	mu     sync.Mutex
	ttl    time.Duration
	items  map[string]time.Time
	nowFn  func() time.Time
}

func newExpiringSet(ttl time.Duration) *expiringSet {
	return &expiringSet{
		ttl:   ttl,
		items: make(map[string]time.Time),
		nowFn: time.Now,
	}
}

func (s *expiringSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.items[key] = s.nowFn().Add(s.ttl)
}

func (s *expiringSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	_, ok := s.items[key]
	return ok
}

func (s *expiringSet) purgeLocked() {
	now := s.nowFn()
	for key, deadline := range s.items {
		if now.After(deadline) {
			delete(s.items, key)
		}
	}
}
