package directory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/portunusbank/portunus/audit"
	"github.com/portunusbank/portunus/session"
)

// Mock store that counts destroys and can fail on demand
type mockStore struct {
	mu        sync.Mutex
	destroyed []string
	failIDs   map[string]bool
}

func (m *mockStore) Get(ctx context.Context, id string) (*session.Record, error) {
	return nil, session.ErrNotFound
}
func (m *mockStore) Save(ctx context.Context, rec *session.Record) error { return nil }
func (m *mockStore) All(ctx context.Context) (map[string]*session.Record, error) {
	return map[string]*session.Record{}, nil
}
func (m *mockStore) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = append(m.destroyed, id)
	if m.failIDs[id] {
		return fmt.Errorf("store unavailable")
	}
	return nil
}

func TestRegisterUnregisterPrunes(t *testing.T) {
	store := &mockStore{}
	d := New(store, nil)

	d.Register("user@example.com", "s1")
	d.Unregister("user@example.com", "s1")

	if got := d.Sessions("user@example.com"); got != nil {
		t.Errorf("expected entry to be pruned, got %v", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	d := New(&mockStore{}, nil)

	d.Register("user@example.com", "s1")
	d.Register("user@example.com", "s1")

	if got := d.Sessions("user@example.com"); len(got) != 1 {
		t.Errorf("expected 1 session after duplicate register, got %v", got)
	}
}

func TestRegisterEmptyArgsNoOp(t *testing.T) {
	d := New(&mockStore{}, nil)

	d.Register("", "s1")
	d.Register("user@example.com", "")

	if got := d.Sessions("user@example.com"); got != nil {
		t.Errorf("expected no entries, got %v", got)
	}
}

func TestDestroyAllForIdentity(t *testing.T) {
	store := &mockStore{}
	d := New(store, nil)

	d.Register("user@example.com", "s1")
	d.Register("user@example.com", "s2")
	d.Register("user@example.com", "s3")

	count := d.DestroyAllForIdentity(context.Background(), "user@example.com")
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
	if got := d.Sessions("user@example.com"); got != nil {
		t.Errorf("expected entry removed after destroy, got %v", got)
	}

	if len(store.destroyed) != 3 {
		t.Errorf("expected 3 store destroys, got %v", store.destroyed)
	}
}

func TestDestroyAllUnknownIdentity(t *testing.T) {
	store := &mockStore{}
	d := New(store, nil)

	count := d.DestroyAllForIdentity(context.Background(), "nobody@example.com")
	if count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}
	if len(store.destroyed) != 0 {
		t.Errorf("expected no store calls, got %v", store.destroyed)
	}
}

func TestDestroyCountsDespiteStoreFailure(t *testing.T) {
	store := &mockStore{failIDs: map[string]bool{"s2": true}}
	d := New(store, nil)

	d.Register("user@example.com", "s1")
	d.Register("user@example.com", "s2")

	count := d.DestroyAllForIdentity(context.Background(), "user@example.com")
	if count != 2 {
		t.Errorf("expected best-effort count 2 despite failure, got %d", count)
	}
	if got := d.Sessions("user@example.com"); got != nil {
		t.Errorf("expected entry removed unconditionally, got %v", got)
	}
}

type memoryRecorder struct {
	events []*audit.Event
}

func (r *memoryRecorder) Record(event *audit.Event) {
	r.events = append(r.events, event)
}

func TestDestroyAllRecordsAuditEvents(t *testing.T) {
	store := &mockStore{failIDs: map[string]bool{"s2": true}}
	d := New(store, nil)
	recorder := &memoryRecorder{}
	d.SetRecorder(recorder)

	d.Register("user@example.com", "s1")
	d.Register("user@example.com", "s2")

	d.DestroyAllForIdentity(context.Background(), "user@example.com")

	// Only the successful destroy is audited; the failure is log-only.
	if len(recorder.events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(recorder.events))
	}
	ev := recorder.events[0]
	if ev.Type != audit.EventSessionRevoked {
		t.Errorf("event type = %q, want %q", ev.Type, audit.EventSessionRevoked)
	}
	if ev.SubjectID != "user@example.com" || ev.SessionID != "s1" {
		t.Errorf("event subject/session = %q/%q, want user@example.com/s1", ev.SubjectID, ev.SessionID)
	}
}

func TestCaseInsensitiveIdentity(t *testing.T) {
	store := &mockStore{}
	d := New(store, nil)

	d.Register("Foo@Bar.com", "s1")

	count := d.DestroyAllForIdentity(context.Background(), "foo@bar.com")
	if count != 1 {
		t.Errorf("expected case-insensitive match, got count %d", count)
	}
}

func TestConcurrentRegisterNoLostUpdate(t *testing.T) {
	d := New(&mockStore{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Register("user@example.com", fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()

	if got := d.Sessions("user@example.com"); len(got) != 50 {
		t.Errorf("expected 50 sessions after concurrent registration, got %d", len(got))
	}
}
