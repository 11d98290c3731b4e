package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldsync/fieldsync/internal/entity"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 5*time.Second)
}

func TestFetchPageBulk(t *testing.T) {
	var gotPath, gotQuery, gotAuth string

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(PageResult{
			Records:    []json.RawMessage{json.RawMessage(`{"id":1}`), json.RawMessage(`{"id":2}`)},
			ServerAsOf: "2024-05-01T10:00:00Z",
		})
	})

	result, err := client.FetchPage(context.Background(), PageRequest{
		Collection: "products",
		PageIndex:  2,
		PageSize:   500,
		Identity:   entity.Identity{RoleID: entity.RoleSalesman, ActorID: 7},
		Since:      "2024-04-30T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}

	if gotPath != "/v1/sync/products" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	for _, want := range []string{"page=2", "size=500", "role_id=1", "actor_id=7", "since=2024-04-30"} {
		if !contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
	if contains(gotQuery, "record_id") {
		t.Errorf("bulk request carried record_id: %q", gotQuery)
	}

	if len(result.Records) != 2 {
		t.Errorf("records = %d, want 2", len(result.Records))
	}
	if result.ServerAsOf != "2024-05-01T10:00:00Z" {
		t.Errorf("server_as_of = %q", result.ServerAsOf)
	}
}

func TestFetchPageSingleRecord(t *testing.T) {
	var gotQuery string

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(PageResult{
			Records: []json.RawMessage{json.RawMessage(`{"id":42}`)},
		})
	})

	result, err := client.FetchPage(context.Background(), PageRequest{
		Collection: "orders",
		PageSize:   500,
		RecordID:   42,
	})
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if !contains(gotQuery, "record_id=42") {
		t.Errorf("query %q missing record_id", gotQuery)
	}
	if len(result.Records) != 1 {
		t.Errorf("records = %d, want 1", len(result.Records))
	}
}

func TestFetchPageServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.FetchPage(context.Background(), PageRequest{Collection: "units", PageSize: 500})
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *api.Error", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", apiErr.StatusCode)
	}
}

func TestFetchPageUnauthorized(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchPage(context.Background(), PageRequest{Collection: "units", PageSize: 500})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !contains(err.Error(), "unauthorized") {
		t.Errorf("error = %q, want mention of unauthorized", err)
	}
}

func TestFetchPageConnectionRefused(t *testing.T) {
	// Server closed before the request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(srv.URL, "", time.Second)

	_, err := client.FetchPage(context.Background(), PageRequest{Collection: "units", PageSize: 500})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *api.Error", err)
	}
	if apiErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport failure", apiErr.StatusCode)
	}
}

func TestIdentity(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/identity" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(entity.Identity{RoleID: entity.RoleManager, ActorID: 12})
	})

	ident, err := client.Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity error: %v", err)
	}
	if ident.RoleID != entity.RoleManager || ident.ActorID != 12 {
		t.Errorf("identity = %+v", ident)
	}
}

func TestLogin(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "agent" || creds["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "fresh-token"})
	})

	token, err := client.Login(context.Background(), "agent", "pw")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q", token)
	}

	if _, err := client.Login(context.Background(), "agent", "wrong"); err == nil {
		t.Errorf("Login with bad password expected error")
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
