package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/foxmn/anthropic_bridge/internal/config"
	"github.com/foxmn/anthropic_bridge/internal/converter"
	"github.com/foxmn/anthropic_bridge/internal/converter/anthropic"
	"github.com/foxmn/anthropic_bridge/internal/converter/openai"
	"github.com/foxmn/anthropic_bridge/internal/debuglog"
	"github.com/foxmn/anthropic_bridge/internal/monitoring"
)

// ResponseBodyMultiplier scales maxBodySizeMB for upstream response bodies.
// Responses may be significantly larger than the request that produced them.
const ResponseBodyMultiplier = 20

// Proxy bridges the Anthropic Messages API to one OpenAI-compatible upstream.
type Proxy struct {
	upstream       config.UpstreamConfig
	client         *http.Client
	logger         *slog.Logger
	maxBodySizeMB  int
	requestTimeout time.Duration
	metrics        *monitoring.Metrics
	debug          *debuglog.Sink
}

func New(cfg *config.Config, logger *slog.Logger, metrics *monitoring.Metrics, debug *debuglog.Sink) *Proxy {
	return &Proxy{
		upstream:       cfg.Upstream,
		logger:         logger,
		maxBodySizeMB:  cfg.Server.MaxBodySizeMB,
		requestTimeout: cfg.Server.RequestTimeout,
		metrics:        metrics,
		debug:          debug,
		client: &http.Client{
			Timeout: cfg.Server.RequestTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// HandleMessages serves POST /v1/messages: validate, transform, forward to the
// upstream chat completions endpoint, and translate the reply back.
func (p *Proxy) HandleMessages(w http.ResponseWriter, r *http.Request, requestID string) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(p.maxBodySizeMB)*1024*1024))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorTooLarge(w, fmt.Sprintf("request body exceeds %d MB", p.maxBodySizeMB))
		} else {
			WriteErrorBadRequest(w, "failed to read request body", "")
		}
		return
	}
	p.debug.DumpRequest(requestID, body)

	req, verr := anthropic.ValidateRequest(body)
	if verr != nil {
		p.logger.Debug("Request rejected", "request_id", requestID, "path", verr.Path, "error", verr.Message)
		p.metrics.RecordValidationFailure(verr.Path)
		p.metrics.RecordRequest("/v1/messages", "json", http.StatusBadRequest, time.Since(start))
		WriteErrorBadRequest(w, verr.Error(), verr.Path)
		return
	}

	mode := "json"
	if req.Stream {
		mode = "stream"
	}

	openAIReq := converter.AnthropicToOpenAIRequest(req, p.upstream.Model)
	payload, err := json.Marshal(openAIReq)
	if err != nil {
		p.logger.Error("Failed to marshal upstream request", "request_id", requestID, "error", err)
		WriteErrorInternal(w, "failed to build upstream request")
		return
	}

	resp, err := p.forwardToUpstream(r, req, payload)
	if err != nil {
		if isClientDisconnectError(err) || errors.Is(err, context.Canceled) {
			p.logger.Debug("Client gone before upstream reply", "request_id", requestID)
			return
		}
		p.logger.Error("Upstream request failed", "request_id", requestID, "error", err)
		p.metrics.RecordUpstreamError("unavailable")
		p.metrics.RecordRequest("/v1/messages", mode, http.StatusBadGateway, time.Since(start))
		WriteErrorBadGateway(w, "upstream request failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		p.forwardUpstreamError(w, resp, requestID)
		p.metrics.RecordRequest("/v1/messages", mode, resp.StatusCode, time.Since(start))
		return
	}

	if req.Stream && IsStreamingResponse(resp) {
		status := p.handleStreaming(w, resp, requestID)
		p.metrics.RecordRequest("/v1/messages", mode, status, time.Since(start))
		return
	}
	if req.Stream {
		p.logger.Warn("Upstream ignored stream request, falling back to JSON response",
			"request_id", requestID, "content_type", resp.Header.Get("Content-Type"))
	}

	status := p.handleJSON(w, resp, requestID)
	p.metrics.RecordRequest("/v1/messages", mode, status, time.Since(start))
}

// forwardToUpstream builds and executes the upstream chat completions request.
func (p *Proxy) forwardToUpstream(r *http.Request, req *anthropic.AnthropicRequest, payload []byte) (*http.Response, error) {
	targetURL := strings.TrimSuffix(p.upstream.BaseURL, "/") + "/v1/chat/completions"

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	upstreamReq.Header.Set("Content-Type", "application/json")
	if auth := p.upstreamAuthorization(r); auth != "" {
		upstreamReq.Header.Set("Authorization", auth)
	}
	if anthropic.HasCacheControl(req) {
		upstreamReq.Header.Set("anthropic-beta", promptCachingBetaHeader)
	}
	if req.Stream {
		upstreamReq.Header.Set("Accept", "text/event-stream")
	}

	return p.client.Do(upstreamReq)
}

// forwardUpstreamError relays an upstream error reply. 4xx responses pass
// through verbatim (the upstream's own envelope reaches the client); 5xx is
// re-wrapped in the Anthropic api_error envelope.
func (p *Proxy) forwardUpstreamError(w http.ResponseWriter, resp *http.Response, requestID string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(p.maxBodySizeMB)*1024*1024))

	if resp.StatusCode >= 500 {
		p.logger.Warn("Upstream server error", "request_id", requestID,
			"status", resp.StatusCode, "body_bytes", len(body))
		p.metrics.RecordUpstreamError("server_error")
		WriteErrorBadGateway(w, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
		return
	}

	p.logger.Debug("Forwarding upstream client error", "request_id", requestID, "status", resp.StatusCode)
	p.metrics.RecordUpstreamError("client_error")
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// handleJSON translates a non-streaming upstream reply and writes the
// Anthropic JSON response. Returns the status code written.
func (p *Proxy) handleJSON(w http.ResponseWriter, resp *http.Response, requestID string) int {
	limit := int64(p.maxBodySizeMB) * 1024 * 1024 * ResponseBodyMultiplier
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		p.logger.Error("Failed to read upstream response", "request_id", requestID, "error", err)
		p.metrics.RecordUpstreamError("unavailable")
		WriteErrorBadGateway(w, "failed to read upstream response")
		return http.StatusBadGateway
	}

	var openAIResp openai.OpenAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		p.logger.Error("Upstream returned malformed JSON", "request_id", requestID, "error", err)
		p.metrics.RecordUpstreamError("malformed")
		WriteErrorBadGateway(w, "upstream returned malformed response")
		return http.StatusBadGateway
	}

	anthropicResp, err := converter.OpenAIToAnthropicResponse(&openAIResp)
	if err != nil {
		p.logger.Error("Failed to translate upstream response", "request_id", requestID, "error", err)
		p.metrics.RecordUpstreamError("malformed")
		WriteErrorBadGateway(w, "upstream returned malformed tool call arguments")
		return http.StatusBadGateway
	}

	out, err := json.Marshal(anthropicResp)
	if err != nil {
		p.logger.Error("Failed to marshal response", "request_id", requestID, "error", err)
		WriteErrorInternal(w, "failed to encode response")
		return http.StatusInternalServerError
	}

	p.debug.DumpResponse(requestID, out)
	p.metrics.RecordTokens(anthropicResp.Usage.InputTokens, anthropicResp.Usage.OutputTokens)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
	return http.StatusOK
}

// IsStreamingResponse reports whether the upstream reply is an SSE stream.
func IsStreamingResponse(resp *http.Response) bool {
	contentType := resp.Header.Get("Content-Type")
	return strings.Contains(contentType, "text/event-stream") ||
		strings.Contains(contentType, "application/stream+json")
}

// isClientDisconnectError reports whether err indicates the client went away.
func isClientDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "write: broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
