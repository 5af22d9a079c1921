// Package directory maintains the in-memory index from a normalized user
// identity to that user's active session ids.
//
// The directory is a fast path, not the source of truth: its state is lost on
// restart and registration can race with revocation across processes, so the
// revocation handler always re-derives the same answer from the session store
// with a full scan. Losing directory state degrades revocation to the scan,
// never to a miss.
package directory

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/portunusbank/portunus/audit"
	"github.com/portunusbank/portunus/session"
)

// Directory maps lowercased email addresses to sets of session ids. A fresh
// instance should be constructed per process (and per test case); there is no
// shared global state.
type Directory struct {
	mu       sync.Mutex
	entries  map[string]map[string]struct{}
	store    session.Store
	recorder audit.Recorder
	log      *zap.Logger
}

// New creates a Directory backed by the given session store. The store is
// only consulted by DestroyAllForIdentity; registration is purely in-memory.
func New(store session.Store, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{
		entries: make(map[string]map[string]struct{}),
		store:   store,
		log:     log,
	}
}

// SetRecorder plugs in an audit recorder; destroyed sessions are then
// reported as session-revoked events. Without one, only logs are emitted.
func (d *Directory) SetRecorder(r audit.Recorder) {
	d.recorder = r
}

// Normalize lowercases an identity so that lookups are case-insensitive.
func Normalize(identity string) string {
	return strings.ToLower(identity)
}

// Register adds the session id to the identity's set, creating the entry on
// first use. Registration is idempotent, and a no-op when either argument is
// empty.
func (d *Directory) Register(identity, sessionID string) {
	if identity == "" || sessionID == "" {
		return
	}
	key := Normalize(identity)

	d.mu.Lock()
	set, ok := d.entries[key]
	if !ok {
		set = make(map[string]struct{})
		d.entries[key] = set
	}
	set[sessionID] = struct{}{}
	d.mu.Unlock()

	d.log.Info("session registered",
		zap.String("identity", key),
		zap.String("session_id", sessionID),
	)
}

// Unregister removes the session id from the identity's set and prunes the
// entry when the set empties. Unknown identities are a no-op.
func (d *Directory) Unregister(identity, sessionID string) {
	if identity == "" || sessionID == "" {
		return
	}
	key := Normalize(identity)

	d.mu.Lock()
	if set, ok := d.entries[key]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(d.entries, key)
		}
	}
	d.mu.Unlock()

	d.log.Info("session unregistered",
		zap.String("identity", key),
		zap.String("session_id", sessionID),
	)
}

// Sessions returns a snapshot of the identity's registered session ids.
func (d *Directory) Sessions(identity string) []string {
	key := Normalize(identity)

	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.entries[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// DestroyAllForIdentity issues a store-level destroy for every session id
// registered under the identity and returns how many were issued. The entry
// is removed unconditionally: a failed destroy is logged and counted anyway,
// since the directory's bookkeeping stays authoritative even when the store
// is inconsistent. Returns 0 for unknown identities without touching the
// store.
func (d *Directory) DestroyAllForIdentity(ctx context.Context, identity string) int {
	if identity == "" {
		return 0
	}
	key := Normalize(identity)

	d.mu.Lock()
	set, ok := d.entries[key]
	if ok {
		delete(d.entries, key)
	}
	d.mu.Unlock()

	if !ok {
		d.log.Info("no registered sessions for identity", zap.String("identity", key))
		return 0
	}

	count := 0
	for id := range set {
		if err := d.store.Destroy(ctx, id); err != nil {
			d.log.Error("session destroy failed",
				zap.String("identity", key),
				zap.String("session_id", id),
				zap.Error(err),
			)
		} else {
			d.log.Info("session destroyed",
				zap.String("identity", key),
				zap.String("session_id", id),
			)
			if d.recorder != nil {
				d.recorder.Record(&audit.Event{
					Type:      audit.EventSessionRevoked,
					SubjectID: key,
					SessionID: id,
					Status:    "success",
					Risk:      audit.RiskMedium,
				})
			}
		}
		count++
	}

	return count
}
