package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hylla/itemflow/internal/adapters/liveupdate"
	"github.com/hylla/itemflow/internal/adapters/storage/sqlite"
	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// newTestHandler wires the full stack over an in-memory database.
func newTestHandler(t *testing.T) (http.Handler, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "u1", Name: "Ada", Token: "tok-ada"},
		{ID: "u2", Name: "Sam", Token: "tok-sam"},
	} {
		if err := repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser() error = %v", err)
		}
	}
	board, err := domain.NewBoard("B1", "Platform", []string{"todo", "done"}, []string{"bug"}, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("NewBoard() error = %v", err)
	}
	if err := repo.UpsertBoard(ctx, board); err != nil {
		t.Fatalf("UpsertBoard() error = %v", err)
	}

	hub := liveupdate.NewHub(16)
	engine := app.NewEngine(repo, repo, repo, uuid.NewString, time.Now, app.EngineConfig{
		LiveUpdates:   hub,
		Notifications: app.NotificationSinks{repo, hub},
	})
	handler, _, err := NewHandler(Config{}, Dependencies{
		Items:  engine,
		Auth:   repo,
		Policy: repo,
		Inbox:  repo,
		Live:   hub,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return handler, repo
}

// call issues one request against handler with an optional bearer token.
func call(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected error without item service")
	}
}

func TestNormalizeConfigRejectsEndpointCollision(t *testing.T) {
	if _, err := normalizeConfig(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}); err == nil {
		t.Fatal("expected collision error")
	}
	cfg, err := normalizeConfig(Config{APIEndpoint: "api/v2/"})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v2" || cfg.MCPEndpoint != "/mcp" || cfg.HTTPBind != defaultBindAddress {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != defaultCORSOrigin {
		t.Fatalf("unexpected cors origins %#v", cfg.CORSOrigins)
	}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	handler, _ := newTestHandler(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := call(t, handler, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	if rec := call(t, handler, http.MethodGet, "/api/v1/items", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := call(t, handler, http.MethodGet, "/api/v1/items", "bogus", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := call(t, handler, http.MethodPost, "/mcp", "", `{}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("mcp status = %d, want 401", rec.Code)
	}
}

func TestPreflightBypassesAuth(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/items", nil)
	req.Header.Set("Origin", defaultCORSOrigin)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != defaultCORSOrigin {
		t.Fatalf("missing allow origin header: %#v", rec.Header())
	}
}

func TestItemLifecycleOverHTTP(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := call(t, handler, http.MethodPost, "/api/v1/boards/B1/items", "tok-ada", `{"title":"Fix login","status":"todo"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data domain.Item `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if created.Data.CreatorID != "u1" || created.Data.Status != "todo" {
		t.Fatalf("unexpected item %#v", created.Data)
	}
	itemPath := fmt.Sprintf("/api/v1/boards/B1/items/%s", created.Data.ID)

	rec = call(t, handler, http.MethodPut, itemPath+"/status", "tok-ada", `{"value":"shipped"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"invalid_value"`) {
		t.Fatalf("invalid status: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodPut, itemPath+"/status", "tok-ada", `{"value":"done"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status change: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodPost, itemPath+"/comments", "tok-sam", `{"text":"verified"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "verified") {
		t.Fatalf("add comment: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/notifications", "tok-sam", "")
	var inbox struct {
		Data []app.InboxEntry `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&inbox); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(inbox.Data) != 2 {
		t.Fatalf("expected status and comment notifications, got %d", len(inbox.Data))
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/boards/B1/items?title=LOGIN", "tok-sam", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), created.Data.ID) {
		t.Fatalf("filter: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/boards/B1/activity?limit=10", "tok-ada", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"comment"`) {
		t.Fatalf("activity: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodDelete, "/api/v1/items/"+created.Data.ID, "tok-ada", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(t, handler, http.MethodGet, "/api/v1/items/"+created.Data.ID, "tok-ada", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Fatalf("get deleted: %d %s", rec.Code, rec.Body.String())
	}
}
