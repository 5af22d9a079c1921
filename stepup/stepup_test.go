package stepup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/portunusbank/portunus/session"
)

func TestFreshnessBoundary(t *testing.T) {
	base := time.Now()
	rec := session.NewRecord("s1")
	Stamp(rec, base)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"just stamped", 0, true},
		{"299s", 299 * time.Second, true},
		{"exactly 300s", 300 * time.Second, false},
		{"301s", 301 * time.Second, false},
	}

	for _, tc := range cases {
		if got := Fresh(rec, base.Add(tc.elapsed)); got != tc.want {
			t.Errorf("%s: Fresh = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFreshRequiresMarker(t *testing.T) {
	rec := session.NewRecord("s1")
	if Fresh(rec, time.Now()) {
		t.Error("unverified session must not be fresh")
	}
	if Fresh(nil, time.Now()) {
		t.Error("nil record must not be fresh")
	}
}

func TestReentrantAccessDoesNotExtendWindow(t *testing.T) {
	base := time.Now()
	rec := session.NewRecord("s1")
	Stamp(rec, base)

	// Checking freshness repeatedly must not move the acquisition time.
	for i := 0; i < 3; i++ {
		Fresh(rec, base.Add(time.Duration(i)*time.Minute))
	}
	if !rec.MFAVerifiedAt.Equal(base) {
		t.Error("freshness check must not reset the clock")
	}
}

func TestMiddlewareRedirectsStaleSession(t *testing.T) {
	store := session.NewMemoryStore()
	gate := NewGate(store, "/stepup", nil)

	rec := session.NewRecord("s1")
	store.Save(context.Background(), rec)

	e := echo.New()
	handler := gate.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers?amount=10", nil)
	rw := httptest.NewRecorder()
	c := e.NewContext(req, rw)
	c.Set(ContextKey, rec)

	if err := handler(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if rw.Code != http.StatusFound {
		t.Errorf("expected 302 redirect, got %d", rw.Code)
	}
	if loc := rw.Header().Get("Location"); loc != "/stepup" {
		t.Errorf("expected redirect to /stepup, got %q", loc)
	}

	saved, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("session lost: %v", err)
	}
	if saved.ReturnTo != "/api/v1/transfers?amount=10" {
		t.Errorf("original destination not recorded, got %q", saved.ReturnTo)
	}
}

func TestMiddlewarePassesFreshSession(t *testing.T) {
	store := session.NewMemoryStore()
	gate := NewGate(store, "/stepup", nil)

	rec := session.NewRecord("s1")
	Stamp(rec, time.Now())

	e := echo.New()
	called := false
	handler := gate.Middleware()(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", nil)
	rw := httptest.NewRecorder()
	c := e.NewContext(req, rw)
	c.Set(ContextKey, rec)

	if err := handler(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if !called {
		t.Error("fresh session should reach the protected handler")
	}
}
