// Package httpapi binds the gateway's wire-level HTTP surface (spec §6)
// onto a handler.Handler: the fixed Anthropic/OpenAI endpoints, the
// model-list endpoint, and any custom endpoints a config snapshot
// declares. It owns request-body size limiting; everything past that
// (auth, normalization, routing, translation) is the handler's job.
package httpapi

import (
	"io"
	"net/http"

	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
	"github.com/chenpu17/cc-gw-sub001/internal/handler"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/telemetry"
)

const defaultMaxBodyBytes int64 = 10 << 20

// Mux serves the gateway's HTTP surface. Built-in routes are registered
// once at construction; custom endpoints are resolved per-request
// against the live config snapshot so a config hot-swap that adds or
// removes one takes effect without rebuilding the mux.
type Mux struct {
	h      *handler.Handler
	config *gwconfig.Store
	logger telemetry.Logger
	mux    *http.ServeMux
}

// New builds a Mux. h and config must be non-nil; logger may be a
// telemetry.NewNoopLogger() in tests.
func New(h *handler.Handler, config *gwconfig.Store, logger telemetry.Logger) *Mux {
	m := &Mux{h: h, config: config, logger: logger, mux: http.NewServeMux()}
	m.registerBuiltins()
	m.mux.HandleFunc("/", m.serveCustomOrNotFound)
	return m
}

func (m *Mux) registerBuiltins() {
	m.mux.HandleFunc("POST /anthropic/v1/messages", m.completion(handler.KindAnthropic, "/anthropic/v1/messages", nil))
	m.mux.HandleFunc("POST /openai/v1/chat/completions", m.completion(handler.KindOpenAIChat, "/openai/v1/chat/completions", nil))
	m.mux.HandleFunc("POST /openai/chat/completions", m.completion(handler.KindOpenAIChat, "/openai/chat/completions", nil))
	m.mux.HandleFunc("POST /openai/v1/responses", m.completion(handler.KindOpenAIResponses, "/openai/v1/responses", nil))
	m.mux.HandleFunc("POST /openai/responses", m.completion(handler.KindOpenAIResponses, "/openai/responses", nil))
	m.mux.HandleFunc("GET /openai/v1/models", m.h.ServeModels)
}

// serveCustomOrNotFound looks path up against the live snapshot's
// declared custom endpoints (spec §6: "Custom endpoints declared in
// config may bind additional paths"). A built-in path reaches here only
// with a method its pattern does not accept, and gets a 404.
func (m *Mux) serveCustomOrNotFound(w http.ResponseWriter, r *http.Request) {
	snap := m.config.Load()
	ep, ok := snap.Endpoints[r.URL.Path]
	if !ok || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	m.completion(kindFor(ep.Kind), ep.Path, &ep.Routes)(w, r)
}

func kindFor(k model.UpstreamType) handler.Kind {
	switch k {
	case model.UpstreamOpenAIChat:
		return handler.KindOpenAIChat
	case model.UpstreamOpenAIResponses:
		return handler.KindOpenAIResponses
	case model.UpstreamOpenAIAuto:
		return handler.KindOpenAIAuto
	default:
		return handler.KindAnthropic
	}
}

// completion returns an http.HandlerFunc that size-limits the body and
// hands off to handler.ServeCompletion for kind/endpointTag/table.
func (m *Mux) completion(kind handler.Kind, endpointTag string, table *gwconfig.RoutingTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := m.config.Load()
		limit := snap.Features.MaxRequestBodyBytes
		if limit <= 0 {
			limit = defaultMaxBodyBytes
		}

		r.Body = http.MaxBytesReader(w, r.Body, limit)
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			m.logger.Warn(r.Context(), "request body read failed", "endpoint", endpointTag, "error", err.Error())
			writeBodyTooLarge(w)
			return
		}

		m.h.ServeCompletion(w, r, kind, endpointTag, table, raw)
	}
}

func writeBodyTooLarge(w http.ResponseWriter) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	_, _ = w.Write([]byte(`{"error":{"code":"invalid_request","message":"request body exceeds the configured limit"}}`))
}

// Handler returns the root http.Handler to mount on an *http.Server.
func (m *Mux) Handler() http.Handler {
	return m.mux
}
