package router

import (
	"context"
	"sync"

	"greenmantle.im/xmppd/jid"
)

// OfflineStore hands a raw stanza off for later delivery when no session is
// currently bound for the message's destination bare JID. raw is a complete,
// self-contained stanza, including its start and end tags. Store is the only
// method the Router calls; nothing in this package replays stored stanzas
// when a resource binds.
type OfflineStore interface {
	Store(ctx context.Context, to *jid.JID, raw []byte) error
}

// MemoryOfflineStore is a process-local, non-persistent OfflineStore backed
// by a map of bare JID to queued stanzas. It is the Router's default,
// appropriate for tests and single-process deployments; a real deployment
// is expected to supply its own OfflineStore backed by durable storage,
// which is out of scope for this module.
type MemoryOfflineStore struct {
	mu    sync.Mutex
	queue map[string][][]byte
}

// NewMemoryOfflineStore returns an empty MemoryOfflineStore.
func NewMemoryOfflineStore() *MemoryOfflineStore {
	return &MemoryOfflineStore{queue: make(map[string][][]byte)}
}

// Store appends raw to the queue for to's bare JID.
func (m *MemoryOfflineStore) Store(ctx context.Context, to *jid.JID, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := to.Bare().String()
	m.queue[key] = append(m.queue[key], raw)
	return nil
}

// Drain removes and returns every stanza queued for bare's bare JID, in the
// order they were stored. The Router does not call Drain, so stored stanzas
// are not replayed to a newly bound session by this package.
func (m *MemoryOfflineStore) Drain(bare *jid.JID) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bare.Bare().String()
	queued := m.queue[key]
	delete(m.queue, key)
	return queued
}
