package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beamchat/relay/internal/core"
	"github.com/beamchat/relay/internal/domain"
)

type connEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry owns the set of live connections and their authenticated
// identity. It is the single most contended structure in the process; every
// mutation goes through one RWMutex.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

// Admit registers a new live connection and returns its generated id.
// The caller has already verified the identity; Admit never fails.
func (r *Registry) Admit(sess core.MemberSession, cancel context.CancelFunc) domain.ConnID {
	cid := domain.ConnID(uuid.NewString())
	r.mu.Lock()
	r.conns[cid] = &connEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(sess.Identity().UserID)).Msg("connection admitted")
	return cid
}

// Remove marks the connection dead and drops it from the live table.
// Idempotent: removing an unknown id is a no-op.
func (r *Registry) Remove(cid domain.ConnID) {
	r.mu.Lock()
	_, existed := r.conns[cid]
	delete(r.conns, cid)
	r.mu.Unlock()
	if existed {
		log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("connection removed")
	}
}

func (r *Registry) Session(cid domain.ConnID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) IdentityOf(cid domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Session.Identity(), true
	}
	return domain.Identity{}, false
}

// Cancel triggers the connection's context, which unwinds its read/write
// loops and takes the normal disconnect path.
func (r *Registry) Cancel(cid domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled connection")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
