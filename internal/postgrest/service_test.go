package postgrest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"
)

type staticTokens struct {
	token string
}

func (s *staticTokens) AccessToken() string { return s.token }

func setupTestService(t *testing.T, handler http.HandlerFunc) (*Service, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	svc, err := NewService(models.BackendConfig{
		ProjectURL: server.URL,
		AnonKey:    "anon-key",
	}, &staticTokens{token: "user-token"})
	if err != nil {
		server.Close()
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, func() {
		svc.Close()
		server.Close()
	}
}

func TestDo_SendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAPIKey, gotAccept string
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `[]`)
	})
	defer cleanup()

	if _, err := svc.GetBankAccounts(context.Background(), "u1"); err != nil {
		t.Fatalf("GetBankAccounts failed: %v", err)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("Expected the session bearer, got %q", gotAuth)
	}
	if gotAPIKey != "anon-key" {
		t.Errorf("Expected the anon apikey header, got %q", gotAPIKey)
	}
	if gotAccept != "application/json" {
		t.Errorf("Expected JSON accept header, got %q", gotAccept)
	}
}

func TestDo_AnonBearerWithoutSession(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	svc, err := NewService(models.BackendConfig{ProjectURL: server.URL, AnonKey: "anon-key"}, &staticTokens{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Close()

	if _, err := svc.GetBankAccounts(context.Background(), "u1"); err != nil {
		t.Fatalf("GetBankAccounts failed: %v", err)
	}
	if gotAuth != "Bearer anon-key" {
		t.Errorf("Expected the anon key bearer fallback, got %q", gotAuth)
	}
}

func TestDo_MutationsAskForRepresentation(t *testing.T) {
	var gotPrefer string
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		fmt.Fprint(w, `[{"id": "p1", "handle": "p1"}]`)
	})
	defer cleanup()

	if _, err := svc.CreateProfile(context.Background(), store.CreateProfileParams{Id: "p1", Handle: "p1"}); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if gotPrefer != "return=representation" {
		t.Errorf("Expected representation preference, got %q", gotPrefer)
	}
}

func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, store.ErrRowNotFound},
		{http.StatusNotAcceptable, store.ErrRowNotFound},
		{http.StatusConflict, store.ErrDuplicateRow},
	}
	for _, tt := range tests {
		svc, cleanup := setupTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		})
		if _, err := svc.GetProfile(context.Background(), "u1"); !errors.Is(err, tt.want) {
			t.Errorf("Status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		cleanup()
	}
}

func TestDo_ServerErrorIncludesStatus(t *testing.T) {
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "permission denied for table profiles", http.StatusInternalServerError)
	})
	defer cleanup()

	_, err := svc.GetProfile(context.Background(), "u1")
	if err == nil {
		t.Fatal("Expected the server error surfaced")
	}
	if errors.Is(err, store.ErrRowNotFound) || errors.Is(err, store.ErrDuplicateRow) {
		t.Errorf("A 500 must not map to a sentinel, got %v", err)
	}
}

func TestDo_RejectsDisallowedHost(t *testing.T) {
	svc, err := NewService(models.BackendConfig{
		ProjectURL:   "https://project.example.com",
		AnonKey:      "anon-key",
		AllowedHosts: []string{"other.example.com"},
	}, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Close()

	if _, err := svc.GetProfile(context.Background(), "u1"); err == nil {
		t.Fatal("Expected the disallowed host rejected before any request")
	}
}

func TestGetProfile_EmptyResultIsNotFound(t *testing.T) {
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	defer cleanup()

	if _, err := svc.GetProfile(context.Background(), "ghost"); !errors.Is(err, store.ErrRowNotFound) {
		t.Fatalf("Expected ErrRowNotFound for an empty result, got %v", err)
	}
}

func TestGetEdgeBetween_QueriesBothDirections(t *testing.T) {
	var gotOr string
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotOr = r.URL.Query().Get("or")
		fmt.Fprint(w, `[{"id": "e1", "requester_id": "a", "target_id": "b", "status": "pending"}]`)
	})
	defer cleanup()

	edge, err := svc.GetEdgeBetween(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("GetEdgeBetween failed: %v", err)
	}
	if edge.Id != "e1" {
		t.Errorf("Expected edge e1, got %+v", edge)
	}
	want := "(and(requester_id.eq.a,target_id.eq.b),and(requester_id.eq.b,target_id.eq.a))"
	if gotOr != want {
		t.Errorf("or filter = %q, want %q", gotOr, want)
	}
}

func TestUpdateFriendStatus_RequiresPendingRow(t *testing.T) {
	var gotStatusFilter string
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotStatusFilter = r.URL.Query().Get("status")
		// The edge already settled: the pending filter matches nothing.
		fmt.Fprint(w, `[]`)
	})
	defer cleanup()

	_, err := svc.UpdateFriendStatus(context.Background(), "e1", models.FriendStatusAccepted)
	if !errors.Is(err, store.ErrRowNotFound) {
		t.Fatalf("Expected ErrRowNotFound for a settled edge, got %v", err)
	}
	if gotStatusFilter != "eq.pending" {
		t.Errorf("Expected the pending transition filter, got %q", gotStatusFilter)
	}
}

func TestUpdateFriendStatus_RejectsInvalidTarget(t *testing.T) {
	svc, cleanup := setupTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("No request must be made for an invalid status")
	})
	defer cleanup()

	if _, err := svc.UpdateFriendStatus(context.Background(), "e1", "pending"); err == nil {
		t.Fatal("Expected invalid target status rejected")
	}
}
