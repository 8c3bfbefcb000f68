package route

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolverFirstMatchWins(t *testing.T) {
	r := NewResolver([]Route{
		{ID: "specific", Predicate: Predicate{PathPattern: "/hives/1"}, Target: "http://specific"},
		{ID: "wildcard", Predicate: Predicate{PathPattern: "/hives/**"}, Target: "http://wildcard"},
	})

	req := httptest.NewRequest(http.MethodGet, "/hives/1", nil)
	matched, err := r.Resolve(req, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if matched.ID != "specific" {
		t.Fatalf("expected first declared match to win, got %q", matched.ID)
	}
}

func TestResolverNoMatch(t *testing.T) {
	r := NewResolver([]Route{
		{ID: "only", Predicate: Predicate{PathPattern: "/hives/**"}, Target: "http://only"},
	})

	req := httptest.NewRequest(http.MethodGet, "/playlists/1", nil)
	_, err := r.Resolve(req, "")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestResolverHotReloadIsAtomic(t *testing.T) {
	r := NewResolver([]Route{{ID: "v1", Predicate: Predicate{PathPattern: "/x"}, Target: "http://v1"}})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	matched, err := r.Resolve(req, "")
	if err != nil || matched.ID != "v1" {
		t.Fatalf("expected v1 route, got %+v err=%v", matched, err)
	}

	r.Reload([]Route{{ID: "v2", Predicate: Predicate{PathPattern: "/x"}, Target: "http://v2"}})

	matched, err = r.Resolve(req, "")
	if err != nil || matched.ID != "v2" {
		t.Fatalf("expected reloaded v2 route, got %+v err=%v", matched, err)
	}
}

func TestResolverVersionPredicate(t *testing.T) {
	r := NewResolver([]Route{
		{ID: "v1", Predicate: Predicate{PathPattern: "/hives/**", Version: "v1"}, Target: "http://v1"},
		{ID: "v2", Predicate: Predicate{PathPattern: "/hives/**", Version: "v2"}, Target: "http://v2"},
	})

	req := httptest.NewRequest(http.MethodGet, "/hives/1", nil)
	matched, err := r.Resolve(req, "v2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if matched.ID != "v2" {
		t.Fatalf("expected v2 route for negotiated version v2, got %q", matched.ID)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	r := Route{Filters: []Filter{{Kind: FilterPathRewrite, RewriteFrom: "/api/hives", RewriteTo: "/internal/hives"}}}

	once := r.Rewrite("/api/hives/123")
	if once != "/internal/hives/123" {
		t.Fatalf("unexpected rewrite: %q", once)
	}
	twice := r.Rewrite(once)
	if twice != once {
		t.Fatalf("rewrite not idempotent: %q -> %q", once, twice)
	}
}
