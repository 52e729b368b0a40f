package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dudgeon/penguin-bank-cloud/internal/domain/shared"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/logging"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/metrics"
)

// SessionHeader carries the session identifier between client and server.
const SessionHeader = "Mcp-Session-Id"

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDFromContext returns the request id attached by the HTTP layer, or
// an empty string.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// HTTPServer adapts inbound HTTP requests to dispatcher invocations: it
// negotiates JSON vs SSE, resolves sessions, applies the CORS policy, and
// serves the health and OAuth stub endpoints.
type HTTPServer struct {
	dispatcher     *Dispatcher
	sessions       *SessionRegistry
	metrics        *metrics.Collector
	logger         *logging.Logger
	clock          clockwork.Clock
	allowedOrigins map[string]bool
	router         chi.Router
	httpServer     *http.Server
}

// HTTPServerConfig carries the dependencies for NewHTTPServer.
type HTTPServerConfig struct {
	Addr           string
	Dispatcher     *Dispatcher
	Sessions       *SessionRegistry
	Metrics        *metrics.Collector
	Logger         *logging.Logger
	Clock          clockwork.Clock
	AllowedOrigins []string
}

// NewHTTPServer creates the HTTP transport and wires up all routes.
func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	s := &HTTPServer{
		dispatcher:     cfg.Dispatcher,
		sessions:       cfg.Sessions,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		clock:          cfg.Clock,
		allowedOrigins: make(map[string]bool, len(cfg.AllowedOrigins)),
	}
	for _, origin := range cfg.AllowedOrigins {
		s.allowedOrigins[origin] = true
	}

	r := chi.NewRouter()

	// Top-level middleware so every request, preflights included, is metered
	// and gets CORS headers before routing.
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/.well-known/oauth-authorization-server", s.handleOAuthMetadata)
	r.Get("/auth", s.handleAuthorize)
	r.Post("/token", s.handleToken)
	r.Post("/register", s.handleRegister)
	r.HandleFunc("/health", s.handleHealth)

	// The MCP server answers at the root and at any other path, matching the
	// catch-all routing of the original deployment.
	r.HandleFunc("/", s.handleMCP)
	r.HandleFunc("/*", s.handleMCP)

	s.router = r
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}
	return s
}

// ServeHTTP makes the server usable as an http.Handler in tests.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins listening. Blocks until the server stops.
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting MCP server", logging.Fields{"addr": s.httpServer.Addr})
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware applies the origin allow-list policy: allow-listed origins
// are echoed with credentials permitted; everything else falls back to the
// wildcard origin without credentials (wildcard plus credentials is invalid
// and never emitted together). OPTIONS preflights short-circuit here.
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		if origin != "" && s.allowedOrigins[origin] {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+SessionHeader)
		h.Set("Access-Control-Expose-Headers", SessionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware assigns a request id, records request metrics, and logs
// the request/response pair.
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := s.clock.Now()

		s.logger.LogRequest(r.Method, r.URL.Path, requestID)
		if s.metrics != nil {
			s.metrics.StartRequest(requestID, r.Method, r.URL.Path, r.UserAgent(), r.Header.Get("Origin"))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := s.clock.Now().Sub(start).Milliseconds()
		s.logger.LogResponse(r.Method, r.URL.Path, requestID, status, duration)
		if s.metrics != nil {
			s.metrics.EndRequest(requestID, status)
		}
	})
}

func (s *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		s.handlePost(w, r)
	case r.Method == http.MethodGet && acceptsEventStream(r):
		s.handleSSE(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost decodes a JSON-RPC envelope or batch, resolves the session, and
// dispatches.
func (s *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeParseError(w)
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	trimmed := bytes.TrimLeft(body, " \t\r\n")

	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.handleBatch(w, r, trimmed, sessionID)
		return
	}

	var req shared.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeParseError(w)
		return
	}

	sessionID = s.resolveSession(sessionID, req.Method)
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeResponse(w, r, resp)
}

func (s *HTTPServer) handleBatch(w http.ResponseWriter, r *http.Request, body []byte, sessionID string) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		s.writeParseError(w)
		return
	}

	if batchContainsInitialize(elements) || sessionID != "" {
		sessionID = s.resolveSession(sessionID, "initialize")
	}
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}

	// Dispatch each element independently; notifications produce no entry in
	// the response array.
	responses := make([]*shared.JSONRPCResponse, 0, len(elements))
	for _, raw := range elements {
		if resp := s.dispatcher.DispatchRaw(r.Context(), raw); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeResponse(w, r, responses)
}

// resolveSession looks up or creates the session for a request. A missing id
// only allocates a new session on initialize.
func (s *HTTPServer) resolveSession(sessionID, method string) string {
	if s.sessions == nil {
		return sessionID
	}
	if sessionID == "" {
		if method != "initialize" {
			return ""
		}
		sessionID, _ = s.sessions.GetOrCreate("")
	} else {
		sessionID, _ = s.sessions.GetOrCreate(sessionID)
	}
	if method == "initialize" {
		s.sessions.MarkInitialized(sessionID)
	}
	return sessionID
}

// writeResponse serializes a dispatch result, as a single SSE frame when the
// client prefers an event stream and as plain JSON otherwise.
func (s *HTTPServer) writeResponse(w http.ResponseWriter, r *http.Request, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if acceptsEventStream(r) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		fmt.Fprintf(w, "data: %s\n\n", data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleSSE opens the SSE stub channel: one notifications/initialized event
// carrying the session id, then the connection contract ends. No further
// server-push events are defined.
func (s *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if s.sessions != nil {
		sessionID, _ = s.sessions.GetOrCreate(sessionID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}

	event := shared.JSONRPCRequest{
		JSONRPC: shared.JSONRPCVersion,
		Method:  "notifications/initialized",
		Params:  mustMarshal(map[string]string{"sessionId": sessionID}),
	}
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":           "healthy",
		"mcp_server_ready": true,
		"timestamp":        s.clock.Now().UTC().Format(time.RFC3339),
	}
	if s.metrics != nil {
		payload["metrics"] = s.metrics.Summary()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *HTTPServer) writeParseError(w http.ResponseWriter) {
	resp := shared.NewErrorResponse(nil, shared.ParseError, shared.ErrorMessage(shared.ParseError), nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(resp)
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func batchContainsInitialize(elements []json.RawMessage) bool {
	for _, raw := range elements {
		var probe struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Method == "initialize" {
			return true
		}
	}
	return false
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
