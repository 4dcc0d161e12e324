package anthropic

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	anthropicapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// Handler serves the Messages API endpoints that never reach a backend.
type Handler struct {
	codec   *Codec
	counter domain.TokenCounter
	models  []string
}

func NewHandler(counter domain.TokenCounter, models []string) *Handler {
	return &Handler{codec: NewCodec(), counter: counter, models: models}
}

// HandleListModels returns every configured model name.
func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	created := time.Now().UTC().Format(time.RFC3339)
	list := anthropicapi.ModelList{Data: make([]anthropicapi.Model, 0, len(h.models))}
	for _, m := range h.models {
		list.Data = append(list.Data, anthropicapi.Model{
			ID:          m,
			Type:        "model",
			DisplayName: m,
			CreatedAt:   created,
		})
	}
	if n := len(list.Data); n > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[n-1].ID
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCountTokens estimates the prompt size of a Messages request locally.
func (h *Handler) HandleCountTokens(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, domain.ErrTranslation("failed to read request body"))
		return
	}
	req, err := h.codec.DecodeCountTokensRequest(body)
	if err != nil {
		apiErr, ok := err.(*domain.APIError)
		if !ok {
			apiErr = domain.ErrTranslation(err.Error())
		}
		h.writeError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, anthropicapi.CountTokensResponse{InputTokens: h.counter.CountRequest(req)})
}

func (h *Handler) writeError(w http.ResponseWriter, err *domain.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatusCode())
	_, _ = w.Write(h.codec.EncodeError(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
