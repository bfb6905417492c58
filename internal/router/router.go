package router

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/foxmn/anthropic_bridge/internal/config"
	"github.com/foxmn/anthropic_bridge/internal/proxy"
	"github.com/google/uuid"
)

type Router struct {
	proxy            *proxy.Proxy
	logger           *slog.Logger
	monitoringConfig *config.MonitoringConfig
}

func New(p *proxy.Proxy, logger *slog.Logger, monitoringConfig *config.MonitoringConfig) *Router {
	return &Router{
		proxy:            p,
		logger:           logger,
		monitoringConfig: monitoringConfig,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == rt.monitoringConfig.HealthCheckPath {
		rt.handleHealth(w, req)
		return
	}

	if req.URL.Path == "/v1/messages" {
		setCORSHeaders(w)

		switch req.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			requestID := uuid.NewString()
			w.Header().Set("request-id", requestID)
			rt.logger.Debug("Incoming request", "request_id", requestID, "path", req.URL.Path)
			rt.proxy.HandleMessages(w, req, requestID)
		default:
			proxy.WriteJSONError(w, http.StatusMethodNotAllowed,
				"method not allowed", proxy.ErrKindInvalidRequest, "")
		}
		return
	}

	proxy.WriteErrorNotFound(w, "not found")
}

// setCORSHeaders makes the messages endpoint usable from browser clients.
// The anthropic-version header is accepted (and ignored) for SDK compatibility.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers",
		"Content-Type, Authorization, x-api-key, anthropic-version, anthropic-beta")
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
