package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/config"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/dispatch"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor"
	anthropicfd "github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor/anthropic"
	openaifd "github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor/openai"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/metrics"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/registry"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/server"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage"
)

const bedrockProxyPrefix = "/bedrock-proxy/"

// routes wires the ingress endpoints and the operational endpoints.
type routes struct {
	cfg        *config.Config
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	counter    domain.TokenCounter
	metrics    *metrics.Metrics
	usage      storage.UsageStore
	logger     *slog.Logger
}

func (rt *routes) mount(r chi.Router) error {
	timeout := server.TimeoutMiddleware(rt.cfg.Backend.Timeout)
	models := rt.registry.Models()

	anthropicIngress, err := frontdoor.New(domain.APITypeAnthropic)
	if err != nil {
		return err
	}
	openaiIngress, err := frontdoor.New(domain.APITypeOpenAI)
	if err != nil {
		return err
	}

	anthropicHandler := anthropicfd.NewHandler(rt.counter, models)
	r.Route("/anthropic/v1", func(r chi.Router) {
		rt.guard(r, anthropicIngress)
		r.With(timeout).Post("/messages", rt.dispatcher.Handler(anthropicIngress))
		r.Post("/messages/count_tokens", anthropicHandler.HandleCountTokens)
		r.Get("/models", anthropicHandler.HandleListModels)
	})

	openaiHandler := openaifd.NewHandler(models)
	r.Group(func(r chi.Router) {
		rt.guard(r, openaiIngress)
		r.With(timeout).Post("/v1/chat/completions", rt.dispatcher.Handler(openaiIngress))
		r.Get("/v1/models", openaiHandler.HandleListModels)
		r.With(timeout).Post(bedrockProxyPrefix+"*", rt.dispatcher.HandlerWithModel(openaiIngress, bedrockModel))
	})

	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	if rt.usage != nil {
		r.Get("/usage", rt.handleUsage)
	}
	return nil
}

// guard installs the per-ingress rate limit and key check. Each ingress
// group gets its own token bucket.
func (rt *routes) guard(r chi.Router, ingress domain.Ingress) {
	rl := rt.cfg.Server.RateLimit
	r.Use(server.NewRateLimiter(rl.RPS, rl.Burst).Middleware(ingress))
	if rt.cfg.Server.RequireAPIKey {
		r.Use(server.RequireAPIKey(ingress))
	}
}

// bedrockModel takes the model from the path remainder, which may itself
// contain slashes. r.URL.Path is already unescaped once.
func bedrockModel(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, bedrockProxyPrefix)
}

func (rt *routes) handleUsage(w http.ResponseWriter, r *http.Request) {
	totals, err := rt.usage.Totals(r.Context())
	if err != nil {
		rt.logger.Error("usage totals failed", slog.String("error", err.Error()))
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "usage totals unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": totals})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
