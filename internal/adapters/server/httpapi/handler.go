// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/itemflow/internal/adapters/liveupdate"
	"github.com/hylla/itemflow/internal/adapters/server/common"
	"github.com/hylla/itemflow/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// sseKeepAlive is the comment-frame interval on idle event streams.
const sseKeepAlive = 25 * time.Second

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// DataEnvelope wraps one successful payload.
type DataEnvelope struct {
	Data any `json:"data"`
}

// Dependencies lists the services behind the REST surface. Inbox, Live, and
// Policy are optional.
type Dependencies struct {
	Items  common.ItemService
	Inbox  app.Inbox
	Live   *liveupdate.Hub
	Policy app.PolicyGateway
	Logger *log.Logger
}

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	deps   Dependencies
	logger *log.Logger
	mux    *http.ServeMux
}

// NewHandler constructs the REST adapter and its routes.
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{deps: deps, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /items", h.handleGetAll)
	h.mux.HandleFunc("GET /items/{item}", h.handleGetItem)
	h.mux.HandleFunc("DELETE /items/{item}", h.handleDeleteItem)
	h.mux.HandleFunc("GET /items/{item}/children", h.handleGetChildItems)
	h.mux.HandleFunc("GET /boards/{board}/items", h.handleBoardItems)
	h.mux.HandleFunc("POST /boards/{board}/items", h.handleCreateItem)
	h.mux.HandleFunc("POST /boards/{board}/items/{item}/subitems", h.handleCreateSubItem)
	h.mux.HandleFunc("PUT /boards/{board}/items/{item}/{field}", h.handleChangeField)
	h.mux.HandleFunc("POST /boards/{board}/items/{item}/comments", h.handleAddComment)
	h.mux.HandleFunc("DELETE /boards/{board}/comments/{comment}", h.handleDeleteComment)
	h.mux.HandleFunc("GET /boards/{board}/activity", h.handleActivity)
	h.mux.HandleFunc("GET /boards/{board}/events", h.handleEvents)
	h.mux.HandleFunc("GET /notifications", h.handleListNotifications)
	h.mux.HandleFunc("POST /notifications/{key}/read", h.handleMarkRead)
	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	})
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.deps.Items == nil {
		h.writeErrorFrom(w, r, fmt.Errorf("item service is not configured: %w", common.ErrServiceUnavailable))
		return
	}
	h.mux.ServeHTTP(w, r)
}

// handleGetAll serves GET `/items`.
func (h *Handler) handleGetAll(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Items.GetAll(r.Context())
	writeOutcome(h, w, r, out, err)
}

// handleGetItem serves GET `/items/{item}`.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Items.GetItem(r.Context(), r.PathValue("item"))
	writeOutcome(h, w, r, out, err)
}

// handleDeleteItem serves DELETE `/items/{item}`.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Items.DeleteItem(r.Context(), r.PathValue("item"))
	writeOutcome(h, w, r, out, err)
}

// handleGetChildItems serves GET `/items/{item}/children`.
func (h *Handler) handleGetChildItems(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Items.GetChildItems(r.Context(), r.PathValue("item"))
	writeOutcome(h, w, r, out, err)
}

// handleBoardItems serves GET `/boards/{board}/items`. Query parameters act as filters.
func (h *Handler) handleBoardItems(w http.ResponseWriter, r *http.Request) {
	boardID := r.PathValue("board")
	query := r.URL.Query()
	if len(query) == 0 {
		out, err := h.deps.Items.GetBoardItems(r.Context(), boardID)
		writeOutcome(h, w, r, out, err)
		return
	}
	filter := make(map[string]string, len(query))
	for key := range query {
		filter[key] = query.Get(key)
	}
	out, err := h.deps.Items.FilterItems(r.Context(), filter, boardID)
	writeOutcome(h, w, r, out, err)
}

// handleCreateItem serves POST `/boards/{board}/items`.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	var req common.CreateItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	out, err := h.deps.Items.CreateItem(r.Context(), req.Title, req.Status, caller, r.PathValue("board"))
	writeOutcome(h, w, r, out, err)
}

// handleCreateSubItem serves POST `/boards/{board}/items/{item}/subitems`.
func (h *Handler) handleCreateSubItem(w http.ResponseWriter, r *http.Request) {
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	var req common.CreateSubItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	out, err := h.deps.Items.CreateSubItem(r.Context(), req.Title, caller, r.PathValue("board"), r.PathValue("item"))
	writeOutcome(h, w, r, out, err)
}

// handleChangeField serves PUT `/boards/{board}/items/{item}/{field}`.
func (h *Handler) handleChangeField(w http.ResponseWriter, r *http.Request) {
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	var req common.FieldRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	field := common.ItemField(strings.TrimSpace(r.PathValue("field")))
	out, err := common.ApplyField(r.Context(), h.deps.Items, field, r.PathValue("board"), r.PathValue("item"), caller, req.Value)
	writeOutcome(h, w, r, out, err)
}

// handleAddComment serves POST `/boards/{board}/items/{item}/comments`.
func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	var req common.AddCommentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	out, err := h.deps.Items.AddComment(r.Context(), r.PathValue("item"), r.PathValue("board"), caller, req.Text)
	writeOutcome(h, w, r, out, err)
}

// handleDeleteComment serves DELETE `/boards/{board}/comments/{comment}`.
func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	out, err := h.deps.Items.DeleteComment(r.Context(), r.PathValue("board"), caller, r.PathValue("comment"))
	writeOutcome(h, w, r, out, err)
}

// handleActivity serves GET `/boards/{board}/activity?limit=N`.
func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	out, err := h.deps.Items.ListBoardActivity(r.Context(), r.PathValue("board"), limit)
	writeOutcome(h, w, r, out, err)
}

// handleListNotifications serves GET `/notifications?limit=N` for the caller.
func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.deps.Inbox == nil {
		h.writeErrorFrom(w, r, fmt.Errorf("notification inbox is not configured: %w", common.ErrServiceUnavailable))
		return
	}
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	entries, err := h.deps.Inbox.ListNotifications(r.Context(), caller, limit)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: entries})
}

// handleMarkRead serves POST `/notifications/{key}/read`.
func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if h.deps.Inbox == nil {
		h.writeErrorFrom(w, r, fmt.Errorf("notification inbox is not configured: %w", common.ErrServiceUnavailable))
		return
	}
	caller, err := common.CallerID(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	key := r.PathValue("key")
	if err := h.deps.Inbox.MarkNotificationRead(r.Context(), caller, key); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: map[string]string{"delivery_key": key}})
}

// handleEvents serves GET `/boards/{board}/events` as a server-sent event stream.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Live == nil {
		h.writeErrorFrom(w, r, fmt.Errorf("live updates are not configured: %w", common.ErrServiceUnavailable))
		return
	}
	ctx := r.Context()
	caller, err := common.CallerID(ctx)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	boardID := strings.TrimSpace(r.PathValue("board"))
	if h.deps.Policy != nil {
		member, err := h.deps.Policy.IsMember(ctx, boardID, caller)
		if err != nil {
			h.writeErrorFrom(w, r, err)
			return
		}
		if !member {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    string(app.FailureNotAMember),
				Message: fmt.Sprintf("user %q is not a member of board %q", caller, boardID),
			})
			return
		}
	}

	sub := h.deps.Live.Subscribe(boardID)
	defer sub.Close()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("event stream flush unsupported", "board_id", boardID, "err", err)
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encode live event", "board_id", boardID, "type", ev.Type, "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// parseLimit reads the optional positive `limit` query parameter.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit %q: %w", raw, common.ErrInvalidRequest)
	}
	return limit, nil
}

// writeOutcome maps an engine result onto the response envelope.
func writeOutcome[T any](h *Handler, w http.ResponseWriter, r *http.Request, out app.Outcome[T], err error) {
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	if failure, failed := out.Failure(); failed {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    string(failure.Kind),
			Message: failure.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: out.Value()})
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func (h *Handler) writeErrorFrom(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthenticated",
			Message: "missing or unknown API token",
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrServiceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "internal error",
		})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("encode response", "err", err)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
