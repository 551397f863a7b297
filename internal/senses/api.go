package senses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// APIConfig configures the HTTP API sense.
type APIConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9090" or ":0".
	Addr string
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
	// Timeout bounds how long POST /query waits for the reply. Default 30s.
	Timeout time.Duration
}

// APISense serves size queries and commands over HTTP. POST /query blocks
// until the bot has answered.
type APISense struct {
	cfg APIConfig
	srv *http.Server
	out chan<- *UnifiedInput

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	stopped  bool

	// pending maps input IDs to the waiting request.
	pending   map[string]chan apiQueryResponse
	pendingMu sync.Mutex
}

// apiQueryRequest is the JSON body for POST /query.
type apiQueryRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

// apiQueryResponse is the JSON body returned for POST /query. Document holds
// the content of an exported file, DocumentName its file name.
type apiQueryResponse struct {
	InputID      string `json:"input_id"`
	Text         string `json:"text"`
	Document     string `json:"document,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
}

type apiHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// NewAPISense creates an HTTP API sense adapter.
func NewAPISense(cfg APIConfig) *APISense {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &APISense{
		cfg:     cfg,
		pending: make(map[string]chan apiQueryResponse),
	}
}

// Name returns the sense name.
func (a *APISense) Name() string { return "API" }

// Handler returns the sense's routes. Start serves the same handler.
func (a *APISense) Handler() http.Handler {
	startTime := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiHealthResponse{
			Status: "ok",
			Uptime: time.Since(startTime).String(),
		})
	})
	if a.cfg.Metrics != nil {
		mux.Handle("GET /metrics", a.cfg.Metrics)
	}
	mux.HandleFunc("POST /query", a.handleQuery)
	return mux
}

// Start launches the HTTP server and blocks until ctx is cancelled. It
// returns only after in-flight requests have finished.
func (a *APISense) Start(ctx context.Context, out chan<- *UnifiedInput) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("api sense: listen: %w", err)
	}

	a.mu.Lock()
	a.out = out
	a.ctx = ctx
	a.listener = ln
	a.srv = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := a.srv
	a.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api sense: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api sense: shutdown: %w", err)
	}
	<-serveErr
	return ctx.Err()
}

func (a *APISense) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req apiQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text required"})
		return
	}

	a.mu.Lock()
	out, ctx := a.out, a.ctx
	a.mu.Unlock()
	if out == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not running"})
		return
	}

	input := NewUnifiedInput(SourceAPI, a.Name(), req.Text)
	input.SourceMeta.Sender = req.Sender
	if input.SourceMeta.Sender == "" {
		input.SourceMeta.Sender = "api_user"
	}
	input.ResponseChannel = input.InputID

	ch := make(chan apiQueryResponse, 1)
	a.pendingMu.Lock()
	a.pending[input.InputID] = ch
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, input.InputID)
		a.pendingMu.Unlock()
	}()

	timeout := time.NewTimer(a.cfg.Timeout)
	defer timeout.Stop()

	select {
	case out <- input:
	case <-ctx.Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
		return
	case <-r.Context().Done():
		return
	case <-timeout.C:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "bot busy"})
		return
	}

	select {
	case resp := <-ch:
		writeJSON(w, http.StatusOK, resp)
	case <-timeout.C:
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "timeout"})
	case <-ctx.Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	case <-r.Context().Done():
	}
}

// Send hands the reply to the request waiting on target. A reply for a
// request that already gave up is dropped.
func (a *APISense) Send(_ context.Context, target string, reply Reply) error {
	a.pendingMu.Lock()
	ch, ok := a.pending[target]
	a.pendingMu.Unlock()
	if !ok {
		return nil
	}

	resp := apiQueryResponse{InputID: target, Text: reply.Text}
	if reply.Document != "" {
		data, err := os.ReadFile(reply.Document)
		if err != nil {
			return fmt.Errorf("api: read document: %w", err)
		}
		resp.Document = string(data)
		resp.DocumentName = filepath.Base(reply.Document)
	}

	select {
	case ch <- resp:
	default:
	}
	return nil
}

// Stop shuts the HTTP server down.
func (a *APISense) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.srv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address once started, which resolves ":0".
func (a *APISense) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.cfg.Addr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
