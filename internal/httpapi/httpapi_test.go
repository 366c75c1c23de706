package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gw-sub001/internal/apikey"
	"github.com/chenpu17/cc-gw-sub001/internal/auditlog"
	"github.com/chenpu17/cc-gw-sub001/internal/connector"
	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
	"github.com/chenpu17/cc-gw-sub001/internal/handler"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/modelcache"
	"github.com/chenpu17/cc-gw-sub001/internal/telemetry"
)

const testSalt = "pepper"

func fakeAnthropicUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-opus-4-6","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
}

func newTestMux(t *testing.T, upstreamURL string, maxBody int64, endpoints map[string]gwconfig.EndpointConfig) (*Mux, *gwconfig.Store, *apikey.MemoryStore) {
	t.Helper()
	snap := &gwconfig.Snapshot{
		Providers: map[string]model.ProviderConfig{
			"test-provider": {
				ID: "test-provider", BaseURL: upstreamURL, Type: model.UpstreamAnthropic,
				Auth: model.ProviderAuth{Mode: model.AuthAPIKey, Secret: "upstream-secret"},
			},
		},
		AnthropicRoutes: gwconfig.RoutingTable{Defaults: gwconfig.RoutingDefaults{Completion: "test-provider:*"}},
		OpenAIRoutes:    gwconfig.RoutingTable{Defaults: gwconfig.RoutingDefaults{Completion: "test-provider:*"}},
		Endpoints:       endpoints,
		Features:        gwconfig.Features{MaxRequestBodyBytes: maxBody},
	}
	store := gwconfig.NewStore(snap)

	registry := connector.NewRegistry()
	registry.Sync(snap.Providers)

	keyStore := apikey.NewMemoryStore()
	keyStore.Put(apikey.HashToken(testSalt, "caller-token"), &apikey.Key{ID: "key-1"}, false)

	h := handler.New(handler.Deps{
		Config:     store,
		Connectors: registry,
		APIKeys:    keyStore,
		APIKeySalt: testSalt,
		AuditStore: auditlog.NewMemoryStore(0),
		ModelCache: modelcache.New(time.Minute),
		Logger:     telemetry.NewNoopLogger(),
		Metrics:    telemetry.NewNoopMetrics(),
		Tracer:     telemetry.NewNoopTracer(),
	})

	return New(h, store, telemetry.NewNoopLogger()), store, keyStore
}

func authedReq(method, path, body string) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer caller-token")
	return r
}

func TestMux_AnthropicMessagesRoute(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 0, nil)

	body := `{"model":"claude-opus-4-6","messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`
	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, "/anthropic/v1/messages", body))

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "hi")
}

func TestMux_OpenAIChatCompletionsBothPaths(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 0, nil)

	body := `{"model":"claude-opus-4-6","messages":[{"role":"user","content":"hi"}]}`
	for _, path := range []string{"/openai/v1/chat/completions", "/openai/chat/completions"} {
		rec := httptest.NewRecorder()
		mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, path, body))
		require.Equal(t, 200, rec.Code, "path %s", path)
	}
}

func TestMux_OpenAIResponsesBothPaths(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 0, nil)

	body := `{"model":"claude-opus-4-6","input":"hi"}`
	for _, path := range []string{"/openai/v1/responses", "/openai/responses"} {
		rec := httptest.NewRecorder()
		mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, path, body))
		require.Equal(t, 200, rec.Code, "path %s", path)
	}
}

func TestMux_ModelsEndpointAggregates(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 0, nil)

	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openai/v1/models", nil))

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"object":"list"`)
}

func TestMux_CustomEndpointRoutesToDeclaredKind(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	endpoints := map[string]gwconfig.EndpointConfig{
		"/custom/chat": {
			Path: "/custom/chat",
			Kind: model.UpstreamOpenAIChat,
			Routes: gwconfig.RoutingTable{
				Defaults: gwconfig.RoutingDefaults{Completion: "test-provider:*"},
			},
		},
	}
	mux, _, _ := newTestMux(t, upstream.URL, 0, endpoints)

	body := `{"model":"claude-opus-4-6","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, "/custom/chat", body))

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"role":"assistant"`)
}

func TestMux_CustomEndpointHotSwapTakesEffectWithoutRebuild(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, store, _ := newTestMux(t, upstream.URL, 0, nil)

	body := `{"model":"claude-opus-4-6","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, "/custom/new", body))
	require.Equal(t, 404, rec.Code)

	prev := store.Load()
	next := *prev
	next.Endpoints = map[string]gwconfig.EndpointConfig{
		"/custom/new": {
			Path:   "/custom/new",
			Kind:   model.UpstreamAnthropic,
			Routes: gwconfig.RoutingTable{Defaults: gwconfig.RoutingDefaults{Completion: "test-provider:*"}},
		},
	}
	store.Swap(&next)

	rec = httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, "/custom/new", body))
	require.Equal(t, 200, rec.Code)
}

func TestMux_UnknownPathReturns404(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 0, nil)

	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nope", strings.NewReader("{}")))
	require.Equal(t, 404, rec.Code)
}

func TestMux_RequestBodyOverLimitRejected(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 16, nil)

	body := `{"model":"claude-opus-4-6","messages":[{"role":"user","content":[{"type":"text","text":"this body is long enough to exceed the tiny limit"}]}]}`
	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, authedReq(http.MethodPost, "/anthropic/v1/messages", body))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_request")
}

func TestMux_InvalidAPIKeyReturns401(t *testing.T) {
	upstream := fakeAnthropicUpstream(t)
	defer upstream.Close()
	mux, _, _ := newTestMux(t, upstream.URL, 0, nil)

	body := `{"model":"claude-opus-4-6","messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`
	rec := httptest.NewRecorder()
	mux.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages", strings.NewReader(body)))

	require.Equal(t, 401, rec.Code)
}
