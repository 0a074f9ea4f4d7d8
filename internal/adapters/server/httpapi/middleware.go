package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// corsAllowMethods lists the methods advertised to allowed origins.
const corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"

// corsAllowHeaders lists the request headers advertised to allowed origins.
const corsAllowHeaders = "Authorization, Content-Type"

// RequireBearer resolves `Authorization: Bearer <token>` into an actor of
// actorType and rejects the request with 401 when the token is missing or unknown.
func RequireBearer(auth app.Authenticator, actorType domain.ActorType, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || auth == nil {
			writeUnauthenticated(w)
			return
		}
		userID, err := auth.Authenticate(r.Context(), token)
		switch {
		case errors.Is(err, app.ErrUnauthenticated):
			writeUnauthenticated(w)
			return
		case err != nil:
			log.Error("authenticate request", "path", r.URL.Path, "err", err)
			writeJSONError(w, http.StatusInternalServerError, APIError{Code: "internal_error", Message: "internal error"})
			return
		}
		ctx := app.WithActor(r.Context(), app.Actor{ID: userID, Type: actorType})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeUnauthenticated writes the 401 envelope.
func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="itemflow"`)
	writeJSONError(w, http.StatusUnauthorized, APIError{
		Code:    "unauthenticated",
		Message: "missing or unknown API token",
	})
}

// CORS sets cross-origin headers for allowed origins and answers every
// OPTIONS request with 202 before it reaches authentication.
func CORS(origins []string, next http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(allowed, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LogRequests logs one debug line per request with its final status.
func LogRequests(logger *log.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
		)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader records the status once.
func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
