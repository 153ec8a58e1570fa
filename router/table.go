// Package router implements component H of the server runtime: a routing
// table mapping bound JIDs to the sessions that own them, and the local
// stanza delivery policy (RFC 6121 §8) that consults it.
//
// The table itself is grounded on the same concurrency idiom the rest of
// the server uses for shared, frequently-read state (a sync.RWMutex
// guarding plain maps, as in xmpp.Session's slock); delivery is grounded on
// the mux package's handler interfaces, since a *Router is registered with
// a *mux.ServeMux as the fallback MessageHandler/PresenceHandler for every
// stanza type a built-in module doesn't claim.
package router // import "greenmantle.im/xmppd/router"

import (
	"sync"

	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/jid"
)

// Table maps bare and full JIDs to the sessions currently bound to them. A
// bare JID may have any number of bound resources (one per concurrently
// connected client); a full JID has at most one.
//
// The zero value is not usable; use NewTable.
type Table struct {
	mu   sync.RWMutex
	full map[string]*xmpp.Session
	bare map[string][]*xmpp.Session
}

// NewTable returns an empty routing table.
func NewTable() *Table {
	return &Table{
		full: make(map[string]*xmpp.Session),
		bare: make(map[string][]*xmpp.Session),
	}
}

func bareKey(j *jid.JID) string {
	return j.Bare().String()
}

// Bind registers session under full, the resource-bound JID resulting from
// a successful resource bind. It is idempotent: rebinding the same full JID
// replaces the prior session.
func (t *Table) Bind(full *jid.JID, session *xmpp.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := full.String()
	bk := bareKey(full)
	if prev := t.full[key]; prev != nil && prev != session {
		kept := t.bare[bk][:0:0]
		for _, s := range t.bare[bk] {
			if s != prev {
				kept = append(kept, s)
			}
		}
		t.bare[bk] = kept
	}
	t.full[key] = session

	resources := t.bare[bk]
	for _, s := range resources {
		if s == session {
			return
		}
	}
	t.bare[bk] = append(resources, session)
}

// Unbind removes full (and, transitively, the bare-JID membership it
// implied) from the table. It is safe to call Unbind more than once or for
// a JID that was never bound.
func (t *Table) Unbind(full *jid.JID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := full.String()
	session, ok := t.full[key]
	if !ok {
		return
	}
	delete(t.full, key)

	bk := bareKey(full)
	resources := t.bare[bk]
	for i, s := range resources {
		if s == session {
			resources = append(resources[:i], resources[i+1:]...)
			break
		}
	}
	if len(resources) == 0 {
		delete(t.bare, bk)
	} else {
		t.bare[bk] = resources
	}
}

// Full returns the session bound to the exact full JID, if any.
func (t *Table) Full(full *jid.JID) (*xmpp.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.full[full.String()]
	return s, ok
}

// Bare returns every session currently bound under the bare JID of j, in
// the order they were bound (oldest first). The returned slice is a copy
// and may be safely retained by the caller.
func (t *Table) Bare(j *jid.JID) []*xmpp.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	resources := t.bare[bareKey(j)]
	if len(resources) == 0 {
		return nil
	}
	out := make([]*xmpp.Session, len(resources))
	copy(out, resources)
	return out
}
