package openai

import (
	"encoding/json"
	"net/http"
	"time"

	openaiapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/openai"
)

// Handler serves the Chat Completions endpoints that never reach a backend.
type Handler struct {
	models  []string
	created int64
}

func NewHandler(models []string) *Handler {
	return &Handler{models: models, created: time.Now().Unix()}
}

// HandleListModels returns every configured model name.
func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	list := openaiapi.ModelList{Object: "list", Data: make([]openaiapi.Model, 0, len(h.models))}
	for _, m := range h.models {
		list.Data = append(list.Data, openaiapi.Model{
			ID:      m,
			Object:  "model",
			Created: h.created,
			OwnedBy: "llm-bridge",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
