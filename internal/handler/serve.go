package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/apikey"
	"github.com/chenpu17/cc-gw-sub001/internal/auditlog"
	"github.com/chenpu17/cc-gw-sub001/internal/connector"
	"github.com/chenpu17/cc-gw-sub001/internal/gwconfig"
	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
	"github.com/chenpu17/cc-gw-sub001/internal/router"
	"github.com/chenpu17/cc-gw-sub001/internal/sse"
	"github.com/chenpu17/cc-gw-sub001/internal/tokenizer"
	"github.com/chenpu17/cc-gw-sub001/internal/translator"
)

// drainBudgetBytes caps how much of the upstream body the handler keeps
// reading after a client disconnect, looking for a trailing usage
// report without unbounded buffering (spec §4.5 "Cancellation").
const drainBudgetBytes = 1 << 16

// exchange carries the state a single request accumulates as it moves
// through RECEIVED → ... → LOG_FINALIZED. Its fields are written by the
// pipeline stages and read only by finalize.
type exchange struct {
	kind        Kind
	endpointTag string
	clientProto model.UpstreamType
	customTable *gwconfig.RoutingTable

	snap     *gwconfig.Snapshot
	identity *apikey.Identity
	payload  *model.NormalizedPayload
	decision model.RouteDecision

	logger *auditlog.Logger

	startedAt  time.Time
	statusCode int
	errMessage string
}

// ServeCompletion runs the full request state machine for one of the
// model-completion endpoints (Anthropic Messages, OpenAI Chat, OpenAI
// Responses, or a custom endpoint bound to one of those wire shapes).
// raw is the already size-limited request body; customTable is nil for
// the built-in anthropic/openai endpoints and non-nil for a
// config-declared custom endpoint.
func (h *Handler) ServeCompletion(w http.ResponseWriter, r *http.Request, kind Kind, endpointTag string, customTable *gwconfig.RoutingTable, raw []byte) {
	ex := &exchange{
		kind:        resolveKind(kind, raw),
		endpointTag: endpointTag,
		customTable: customTable,
		snap:        h.deps.Config.Load(),
		startedAt:   h.now(),
	}
	ex.clientProto = clientProtoFor(ex.kind)

	ctx, span := h.deps.Tracer.Start(r.Context(), "handler.serve_completion")
	defer span.End()
	defer h.finalize(ctx, ex)
	defer h.recoverPanic(ex)

	identity, err := apikey.NewResolver(h.deps.APIKeys, h.deps.APIKeySalt, ex.snap.Features.WildcardKeyEnabled).Resolve(ctx, r.Header)
	if err != nil {
		h.fail(ex, w, err)
		return
	}
	ex.identity = identity

	payload, err := normalize(ex.kind, raw)
	if err != nil {
		h.fail(ex, w, err)
		return
	}
	ex.payload = payload

	decision, err := router.Resolve(ex.snap, routerEndpointFor(ex.kind), ex.customTable, payload, payload.Model)
	if err != nil {
		h.fail(ex, w, err)
		return
	}
	ex.decision = decision

	conn, err := h.deps.Connectors.Get(decision.ProviderID)
	if err != nil {
		h.fail(ex, w, err)
		return
	}

	logger, err := auditlog.New(ctx, h.deps.AuditStore, auditlog.LogRecord{
		Timestamp:   ex.startedAt,
		Endpoint:    ex.endpointTag,
		Provider:    decision.ProviderID,
		Model:       decision.UpstreamModel,
		ClientModel: payload.Model,
		APIKeyID:    identity.KeyID,
		SessionID:   sessionIDFrom(r.Header, payload),
		Stream:      payload.Stream,
	})
	if err != nil {
		h.fail(ex, w, gwerr.Internal(err))
		return
	}
	ex.logger = logger
	if ex.snap.Features.StoreRequestPayloads {
		_ = logger.UpsertRequestPayload(ctx, raw)
	}

	upstreamBody, err := buildUpstreamRequest(decision.UpstreamType, payload, decision.UpstreamModel)
	if err != nil {
		h.fail(ex, w, err)
		return
	}

	sendReq := connector.SendRequest{
		Model:            decision.UpstreamModel,
		Body:             upstreamBody,
		Stream:           payload.Stream,
		ExtraHeaders:     translator.BetaHeaders(decision.UpstreamType, decision.UpstreamModel),
		ForwardedHeaders: r.Header,
	}
	if len(sendReq.ExtraHeaders) > 0 {
		sendReq.Query = map[string]string{"beta": "true"}
	}

	h.deps.Metrics.IncCounter("cc_gw_requests_total", 1, "endpoint", ex.endpointTag, "provider", decision.ProviderID)

	resp, err := conn.Send(ctx, sendReq)
	if err != nil {
		h.fail(ex, w, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		h.failUpstream(ex, w, resp)
		return
	}

	if payload.Stream {
		h.serveStream(ctx, ex, w, resp)
		return
	}
	h.serveUnary(ctx, ex, w, resp)
}

func buildUpstreamRequest(upstreamType model.UpstreamType, payload *model.NormalizedPayload, upstreamModel string) ([]byte, error) {
	switch upstreamType {
	case model.UpstreamAnthropic:
		return translator.BuildAnthropicRequest(payload, upstreamModel)
	case model.UpstreamOpenAIChat:
		return translator.BuildOpenAIChatRequest(payload, upstreamModel)
	case model.UpstreamOpenAIResponses:
		return translator.BuildOpenAIResponsesRequest(payload, upstreamModel)
	default:
		return nil, gwerr.Internal(nil)
	}
}

func (h *Handler) serveUnary(ctx context.Context, ex *exchange, w http.ResponseWriter, resp *connector.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.fail(ex, w, gwerr.UpstreamDecode(err))
		return
	}

	outBody, tokenUsage, err := translator.TranslateResponse(ex.clientProto, ex.decision.UpstreamType, body)
	if err != nil {
		h.fail(ex, w, gwerr.UpstreamDecode(err))
		return
	}

	latencyMillis := float64(h.now().Sub(ex.startedAt).Milliseconds())
	tokenUsage.TPOTMillis = tokenizer.TPOT(false, tokenUsage.TTFTMillis, latencyMillis, tokenUsage.OutputTokens, ex.payload.ThinkingRequested)
	_ = ex.logger.UpdateTokens(ctx, tokenUsage)

	if ex.snap.Features.StoreResponsePayloads {
		_ = ex.logger.UpsertResponsePayload(ctx, outBody)
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outBody)

	ex.statusCode = http.StatusOK
	h.commitUsage(ctx, ex, tokenUsage)
}

func (h *Handler) serveStream(ctx context.Context, ex *exchange, w http.ResponseWriter, resp *connector.Response) {
	flusher, _ := w.(http.Flusher)

	w.Header().Set("content-type", "text/event-stream; charset=utf-8")
	w.Header().Set("cache-control", "no-cache, no-transform")
	w.Header().Set("connection", "keep-alive")
	w.Header().Set("x-accel-buffering", "no")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	st := translator.NewStreamTranslator(ex.clientProto, ex.decision.UpstreamType, ex.startedAt)
	scanner := sse.NewScanner(resp.Body)

	capture := ex.snap.Features.StoreResponsePayloads
	var captured []byte
	disconnected := false
	wroteAny := false

readLoop:
	for {
		ev, err := scanner.Next()
		if err != nil {
			// A canceled request context aborts the in-flight upstream read
			// directly, so cancellation surfaces here as a read error rather
			// than at a loop-top check; ctx.Err() is what actually
			// distinguishes a disconnect from a clean upstream EOF.
			if ctx.Err() != nil {
				disconnected = true
			} else if err != io.EOF {
				ex.errMessage = err.Error()
			}
			break readLoop
		}

		events, terminal, err := st.Step(ev, h.now())
		if err != nil {
			ex.errMessage = err.Error()
			break readLoop
		}
		for _, ce := range events {
			writeSSEEvent(w, ce)
			wroteAny = true
			if capture {
				captured = appendCapture(captured, ce, ex.snap.Features.MaxSSECaptureBytes)
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
		if terminal {
			break readLoop
		}
	}

	// A disconnect after bytes already reached the client is a truncated
	// but otherwise successful stream (spec §4.5 "Cancellation"); a
	// disconnect before the first byte never delivered anything and is
	// reported as a client-closed error instead.
	if disconnected {
		_, _ = translator.DrainUsageTail(resp.Body, drainBudgetBytes)
		if !wroteAny {
			cerr := gwerr.ClientDisconnected()
			ex.statusCode = cerr.HTTPStatus
			ex.errMessage = cerr.Error()
		}
	}

	tokenUsage := st.Usage()
	if ttft := st.TTFT(); ttft != nil {
		tokenUsage.TTFTMillis = float64(ttft.Milliseconds())
	}
	latencyMillis := float64(h.now().Sub(ex.startedAt).Milliseconds())
	tokenUsage.TPOTMillis = tokenizer.TPOT(true, tokenUsage.TTFTMillis, latencyMillis, tokenUsage.OutputTokens, ex.payload.ThinkingRequested)
	_ = ex.logger.UpdateTokens(ctx, tokenUsage)

	if capture && len(captured) > 0 {
		_ = ex.logger.UpsertResponsePayload(ctx, captured)
	}

	if !disconnected || wroteAny {
		ex.statusCode = http.StatusOK
	}
	h.commitUsage(ctx, ex, tokenUsage)
}

func writeSSEEvent(w http.ResponseWriter, ce translator.ClientEvent) {
	if ce.Name != "" {
		_, _ = w.Write([]byte("event: " + ce.Name + "\n"))
	}
	_, _ = w.Write([]byte("data: " + ce.Data + "\n\n"))
}

func appendCapture(captured []byte, ce translator.ClientEvent, maxBytes int64) []byte {
	if maxBytes > 0 && int64(len(captured)) >= maxBytes {
		return captured
	}
	captured = append(captured, []byte(ce.Data)...)
	captured = append(captured, '\n')
	return captured
}

// failUpstream forwards the upstream's own status code per spec §7; the
// gateway never injected provider credentials into this body, so there
// is nothing of the connector's to redact before forwarding it.
func (h *Handler) failUpstream(ex *exchange, w http.ResponseWriter, resp *connector.Response) {
	body, _ := io.ReadAll(resp.Body)
	h.fail(ex, w, gwerr.UpstreamStatus(resp.StatusCode, string(body)))
}

func (h *Handler) fail(ex *exchange, w http.ResponseWriter, err error) {
	gerr, ok := gwerr.As(err)
	if !ok {
		gerr = gwerr.Internal(err)
	}
	ex.statusCode = gerr.HTTPStatus
	ex.errMessage = gerr.Error()

	if gerr.Kind == gwerr.KindClientDisconnected {
		return
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(gerr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(gerr.ToEnvelope())
}

func (h *Handler) recoverPanic(ex *exchange) {
	if r := recover(); r != nil {
		ex.statusCode = http.StatusInternalServerError
		ex.errMessage = "panic recovered"
		h.deps.Logger.Error(context.Background(), "handler panic", "endpoint", ex.endpointTag, "recover", r)
	}
}

// commitUsage records the resolved identity's usage counters. Identity
// is nil only if auth failed before resolution, in which case there is
// nothing to commit.
func (h *Handler) commitUsage(ctx context.Context, ex *exchange, tokenUsage model.TokenUsage) {
	if ex.identity == nil {
		return
	}
	_ = ex.identity.Commit(ctx, h.deps.APIKeys, tokenUsage)
}

func (h *Handler) finalize(ctx context.Context, ex *exchange) {
	if ex.logger == nil {
		return
	}
	latency := h.now().Sub(ex.startedAt)
	_ = ex.logger.Finalize(ctx, auditlog.FinalizeInfo{
		LatencyMillis: latency.Milliseconds(),
		StatusCode:    ex.statusCode,
		ErrorMessage:  ex.errMessage,
	})
	h.deps.Metrics.RecordTimer("cc_gw_request_duration", latency, "endpoint", ex.endpointTag)
}

func sessionIDFrom(h http.Header, payload *model.NormalizedPayload) string {
	if v := h.Get("x-session-id"); v != "" {
		return v
	}
	if payload.Metadata != nil {
		if v, ok := payload.Metadata["session_id"].(string); ok {
			return v
		}
	}
	return ""
}
