package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/itemflow/internal/adapters/liveupdate"
	"github.com/hylla/itemflow/internal/adapters/server/common"
	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// stubItemService provides deterministic engine responses for handler tests.
type stubItemService struct {
	common.ItemService
	item     app.Outcome[domain.Item]
	items    app.Outcome[[]domain.Item]
	err      error
	lastCall string
	lastArgs []string
	filter   map[string]string
}

func (s *stubItemService) itemResult(call string, args ...string) (app.Outcome[domain.Item], error) {
	s.lastCall = call
	s.lastArgs = args
	return s.item, s.err
}

func (s *stubItemService) CreateItem(_ context.Context, title, status, creatorID, boardID string) (app.Outcome[domain.Item], error) {
	return s.itemResult("CreateItem", title, status, creatorID, boardID)
}

func (s *stubItemService) CreateSubItem(_ context.Context, title, userID, boardID, parentID string) (app.Outcome[domain.Item], error) {
	return s.itemResult("CreateSubItem", title, userID, boardID, parentID)
}

func (s *stubItemService) ChangeStatus(_ context.Context, itemID, status, boardID string) (app.Outcome[domain.Item], error) {
	return s.itemResult("ChangeStatus", itemID, status, boardID)
}

func (s *stubItemService) AddComment(_ context.Context, itemID, boardID, userID, text string) (app.Outcome[domain.Item], error) {
	return s.itemResult("AddComment", itemID, boardID, userID, text)
}

func (s *stubItemService) DeleteComment(_ context.Context, boardID, userID, commentID string) (app.Outcome[domain.Item], error) {
	return s.itemResult("DeleteComment", boardID, userID, commentID)
}

func (s *stubItemService) GetItem(_ context.Context, itemID string) (app.Outcome[domain.Item], error) {
	return s.itemResult("GetItem", itemID)
}

func (s *stubItemService) GetBoardItems(_ context.Context, boardID string) (app.Outcome[[]domain.Item], error) {
	s.lastCall = "GetBoardItems"
	s.lastArgs = []string{boardID}
	return s.items, s.err
}

func (s *stubItemService) FilterItems(_ context.Context, filter map[string]string, boardID string) (app.Outcome[[]domain.Item], error) {
	s.lastCall = "FilterItems"
	s.lastArgs = []string{boardID}
	s.filter = filter
	return s.items, s.err
}

// stubInbox records inbox reads for handler tests.
type stubInbox struct {
	entries  []app.InboxEntry
	lastUser string
	marked   string
	err      error
}

func (s *stubInbox) ListNotifications(_ context.Context, userID string, _ int) ([]app.InboxEntry, error) {
	s.lastUser = userID
	return s.entries, s.err
}

func (s *stubInbox) MarkNotificationRead(_ context.Context, userID, deliveryKey string) error {
	s.lastUser = userID
	s.marked = deliveryKey
	return s.err
}

// stubAuth maps fixed tokens to user ids.
type stubAuth map[string]string

func (s stubAuth) Authenticate(_ context.Context, token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", app.ErrUnauthenticated
}

// stubPolicy answers membership from a fixed set.
type stubPolicy struct {
	members map[string]bool
}

func (p stubPolicy) IsValidStatus(context.Context, string, string) (bool, error) { return true, nil }
func (p stubPolicy) IsValidType(context.Context, string, string) (bool, error)   { return true, nil }
func (p stubPolicy) MembersOf(context.Context, string) ([]string, error)         { return nil, nil }
func (p stubPolicy) IsMember(_ context.Context, _ string, userID string) (bool, error) {
	return p.members[userID], nil
}

// authed wraps req with an authenticated actor.
func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(app.WithActor(req.Context(), app.Actor{ID: userID}))
}

// decodeEnvelope decodes one JSON response body into the requested type.
func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

func TestHandlerCreateItemUsesCallerAsCreator(t *testing.T) {
	svc := &stubItemService{item: app.Succeed(domain.Item{ID: "i1", Title: "Fix login", Status: "todo", BoardID: "B1"})}
	handler := NewHandler(Dependencies{Items: svc})

	req := httptest.NewRequest(http.MethodPost, "/boards/B1/items", strings.NewReader(`{"title":"Fix login","status":"todo"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(req, "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	got := decodeEnvelope[struct {
		Data domain.Item `json:"data"`
	}](t, rec)
	if got.Data.ID != "i1" || got.Data.Title != "Fix login" {
		t.Fatalf("unexpected payload %#v", got.Data)
	}
	want := []string{"Fix login", "todo", "u1", "B1"}
	if svc.lastCall != "CreateItem" || strings.Join(svc.lastArgs, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected call %s%v", svc.lastCall, svc.lastArgs)
	}
}

func TestHandlerFailureOutcomeMapsTo400(t *testing.T) {
	svc := &stubItemService{item: app.Fail[domain.Item](app.FailureScopeViolation, "item %q is not on board %q", "i1", "B2")}
	handler := NewHandler(Dependencies{Items: svc})

	req := httptest.NewRequest(http.MethodPut, "/boards/B2/items/i1/status", strings.NewReader(`{"value":"done"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(req, "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	got := decodeEnvelope[ErrorEnvelope](t, rec)
	if got.Error.Code != "scope_violation" || !strings.Contains(got.Error.Message, "B2") {
		t.Fatalf("unexpected error %#v", got.Error)
	}
	if svc.lastCall != "ChangeStatus" {
		t.Fatalf("expected ChangeStatus, got %q", svc.lastCall)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"infrastructure", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
		{"not found", app.ErrNotFound, http.StatusNotFound, "not_found"},
		{"invalid request", common.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubItemService{err: tc.err}
			handler := NewHandler(Dependencies{Items: svc})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/items/i1", nil), "u1"))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			got := decodeEnvelope[ErrorEnvelope](t, rec)
			if got.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", got.Error.Code, tc.wantCode)
			}
			if tc.wantStatus == http.StatusInternalServerError && strings.Contains(got.Error.Message, "disk") {
				t.Fatalf("internal error leaked cause: %q", got.Error.Message)
			}
		})
	}
}

func TestHandlerBoardItemsQueryBecomesFilter(t *testing.T) {
	svc := &stubItemService{items: app.Succeed([]domain.Item{{ID: "i1"}})}
	handler := NewHandler(Dependencies{Items: svc})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/boards/B1/items", nil), "u1"))
	if rec.Code != http.StatusOK || svc.lastCall != "GetBoardItems" {
		t.Fatalf("expected GetBoardItems, got %q status %d", svc.lastCall, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/boards/B1/items?status=todo&title=login", nil), "u1"))
	if rec.Code != http.StatusOK || svc.lastCall != "FilterItems" {
		t.Fatalf("expected FilterItems, got %q status %d", svc.lastCall, rec.Code)
	}
	if svc.filter["status"] != "todo" || svc.filter["title"] != "login" {
		t.Fatalf("unexpected filter %#v", svc.filter)
	}
}

func TestHandlerCommentRoutes(t *testing.T) {
	svc := &stubItemService{item: app.Succeed(domain.Item{ID: "i1"})}
	handler := NewHandler(Dependencies{Items: svc})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/boards/B1/items/i1/comments", strings.NewReader(`{"text":"looks good"}`))
	handler.ServeHTTP(rec, authed(req, "u2"))
	if rec.Code != http.StatusOK || svc.lastCall != "AddComment" {
		t.Fatalf("expected AddComment, got %q status %d", svc.lastCall, rec.Code)
	}
	if strings.Join(svc.lastArgs, ",") != "i1,B1,u2,looks good" {
		t.Fatalf("unexpected args %v", svc.lastArgs)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodDelete, "/boards/B1/comments/c9", nil), "u2"))
	if rec.Code != http.StatusOK || strings.Join(svc.lastArgs, ",") != "B1,u2,c9" {
		t.Fatalf("unexpected delete call %q %v", svc.lastCall, svc.lastArgs)
	}
}

func TestHandlerRejectsMalformedBodies(t *testing.T) {
	svc := &stubItemService{item: app.Succeed(domain.Item{ID: "i1"})}
	handler := NewHandler(Dependencies{Items: svc})

	for _, body := range []string{`{"title":`, `{"title":"x","extra":1}`, `{"title":"x"}{}`} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/boards/B1/items", strings.NewReader(body)), "u1"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if svc.lastCall != "" {
		t.Fatalf("expected no engine call, got %q", svc.lastCall)
	}
}

func TestHandlerUnknownFieldAndRoute(t *testing.T) {
	handler := NewHandler(Dependencies{Items: &stubItemService{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/boards/B1/items/i1/title", strings.NewReader(`{"value":"x"}`))
	handler.ServeHTTP(rec, authed(req, "u1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/nope", nil), "u1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerMutationsRequireActor(t *testing.T) {
	svc := &stubItemService{item: app.Succeed(domain.Item{ID: "i1"})}
	handler := NewHandler(Dependencies{Items: svc})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/boards/B1/items", strings.NewReader(`{"title":"x","status":"todo"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandlerNotifications(t *testing.T) {
	inbox := &stubInbox{entries: []app.InboxEntry{{Message: "New comment on \"Fix login\": hi"}}}
	handler := NewHandler(Dependencies{Items: &stubItemService{}, Inbox: inbox})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/notifications?limit=5", nil), "u3"))
	if rec.Code != http.StatusOK || inbox.lastUser != "u3" {
		t.Fatalf("status = %d user = %q", rec.Code, inbox.lastUser)
	}
	got := decodeEnvelope[struct {
		Data []app.InboxEntry `json:"data"`
	}](t, rec)
	if len(got.Data) != 1 {
		t.Fatalf("unexpected inbox %#v", got.Data)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/notifications/abc123/read", nil), "u3"))
	if rec.Code != http.StatusOK || inbox.marked != "abc123" {
		t.Fatalf("status = %d marked = %q", rec.Code, inbox.marked)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/notifications?limit=-1", nil), "u3"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad limit", rec.Code)
	}
}

func TestHandlerNotificationsWithoutInbox(t *testing.T) {
	handler := NewHandler(Dependencies{Items: &stubItemService{}})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/notifications", nil), "u3"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandlerEventsStreamsBoardUpdates(t *testing.T) {
	hub := liveupdate.NewHub(8)
	handler := NewHandler(Dependencies{
		Items:  &stubItemService{},
		Live:   hub,
		Policy: stubPolicy{members: map[string]bool{"u1": true}},
	})
	srv := httptest.NewServer(RequireBearer(stubAuth{"tok": "u1"}, domain.ActorTypeUser, handler))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/boards/B1/events", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("unexpected preamble %q", line)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("B1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := hub.ItemUpdated(ctx, domain.Item{ID: "i1", BoardID: "B1", Title: "Fix login"}, "B1"); err != nil {
		t.Fatalf("ItemUpdated() error = %v", err)
	}

	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString() error = %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if eventLine != string(liveupdate.EventItemUpdated) {
		t.Fatalf("event = %q", eventLine)
	}
	var ev liveupdate.Event
	if err := json.Unmarshal([]byte(dataLine), &ev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Item == nil || ev.Item.ID != "i1" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestHandlerEventsRejectsNonMember(t *testing.T) {
	handler := NewHandler(Dependencies{
		Items:  &stubItemService{},
		Live:   liveupdate.NewHub(1),
		Policy: stubPolicy{members: map[string]bool{}},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/boards/B1/events", nil), "u9"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeEnvelope[ErrorEnvelope](t, rec); got.Error.Code != "not_a_member" {
		t.Fatalf("code = %q", got.Error.Code)
	}
}
