// Package connector implements the per-provider HTTP sender: URL
// assembly, auth header injection, extra-header merge policy, and
// streaming body passthrough without buffering (spec §4.7).
package connector

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// defaultPaths maps an upstream type to its provider-default request
// path when the caller does not supply an explicit override.
var defaultPaths = map[model.UpstreamType]string{
	model.UpstreamAnthropic:       "/v1/messages",
	model.UpstreamOpenAIChat:      "/v1/chat/completions",
	model.UpstreamOpenAIResponses: "/v1/responses",
}

// SendRequest is the request shape a Connector forwards upstream.
type SendRequest struct {
	Model       string
	Body        []byte
	Stream      bool
	PathOverride string
	Query       map[string]string
	ExtraHeaders map[string]string // beta headers etc. computed by the translator
	// ForwardedHeaders are headers copied verbatim from the client
	// request, restricted by the caller to the anthropic-*/content-type/
	// accept allow-list (spec §4.7).
	ForwardedHeaders http.Header
}

// Response wraps the upstream HTTP response. Body must be closed by the
// caller once fully consumed or abandoned.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Connector sends requests to one configured provider.
type Connector struct {
	provider model.ProviderConfig
	client   *http.Client
}

// New builds a Connector for one provider using the given HTTP client
// (callers share one client across connectors so keep-alives pool).
func New(provider model.ProviderConfig, client *http.Client) *Connector {
	return &Connector{provider: provider, client: client}
}

// Send issues a single attempt against the provider; there are no
// retries by design (spec §4.7, §9 "No retries by design").
func (c *Connector) Send(ctx context.Context, req SendRequest) (*Response, error) {
	url := c.buildURL(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(req.Body)))
	if err != nil {
		return nil, gwerr.Internal(err)
	}
	httpReq.Header.Set("content-type", "application/json")
	if req.Stream {
		httpReq.Header.Set("accept", "text/event-stream")
	}

	c.applyAuth(httpReq)
	applyForwardedHeaders(httpReq, req.ForwardedHeaders)
	c.applyExtraHeaders(httpReq, req.ExtraHeaders)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, gwerr.UpstreamUnreachable(err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

func (c *Connector) buildURL(req SendRequest) string {
	base := strings.TrimRight(c.provider.BaseURL, "/")
	path := req.PathOverride
	if path == "" {
		path = defaultPaths[c.provider.Type]
	}
	url := base + path
	if len(req.Query) > 0 {
		q := make([]string, 0, len(req.Query))
		for k, v := range req.Query {
			q = append(q, k+"="+v)
		}
		url += "?" + strings.Join(q, "&")
	}
	return url
}

// applyAuth sets the provider's authentication header (spec §4.7):
// api-key mode sends x-api-key plus a default anthropic-version when
// absent; bearer mode sends Authorization.
func (c *Connector) applyAuth(req *http.Request) {
	switch c.provider.Auth.Mode {
	case model.AuthAPIKey:
		req.Header.Set("x-api-key", c.provider.Auth.Secret)
		if req.Header.Get("anthropic-version") == "" {
			req.Header.Set("anthropic-version", "2023-06-01")
		}
	case model.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.provider.Auth.Secret)
	}
}

var forwardableHeaderPrefixes = []string{"anthropic-"}
var forwardableHeaderNames = map[string]bool{"content-type": true, "accept": true}

func applyForwardedHeaders(req *http.Request, forwarded http.Header) {
	for name, values := range forwarded {
		lower := strings.ToLower(name)
		allowed := forwardableHeaderNames[lower]
		if !allowed {
			for _, prefix := range forwardableHeaderPrefixes {
				if strings.HasPrefix(lower, prefix) {
					allowed = true
					break
				}
			}
		}
		if !allowed {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
}

// applyExtraHeaders merges the provider's configured extra headers
// last; they may only override the auth header when the provider was
// declared with ExtraHeadersOverrideAuth (spec §4.7).
func (c *Connector) applyExtraHeaders(req *http.Request, computed map[string]string) {
	authHeaderNames := map[string]bool{"x-api-key": true, "authorization": true}
	for name, value := range c.provider.ExtraHeaders {
		if authHeaderNames[strings.ToLower(name)] && !c.provider.ExtraHeadersOverrideAuth {
			continue
		}
		req.Header.Set(name, value)
	}
	for name, value := range computed {
		req.Header.Set(name, value)
	}
}
