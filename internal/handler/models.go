package handler

import (
	"encoding/json"
	"net/http"
)

// modelListResponse is the OpenAI-shaped model list body for
// GET /openai/v1/models (spec §6).
type modelListResponse struct {
	Object string          `json:"object"`
	Data   []modelListItem `json:"data"`
}

type modelListItem struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	OwnedBy  string            `json:"owned_by"`
	Metadata modelListMetadata `json:"metadata"`
}

type modelListMetadata struct {
	Providers []string `json:"providers"`
}

// ServeModels handles GET /openai/v1/models, aggregating every
// configured provider's known model set into one OpenAI-shaped list.
func (h *Handler) ServeModels(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Config.Load()
	list := h.deps.ModelCache.Get(r.Context(), snap)

	out := modelListResponse{Object: "list", Data: make([]modelListItem, 0, len(list.Entries))}
	for _, e := range list.Entries {
		out.Data = append(out.Data, modelListItem{
			ID:       e.ID,
			Object:   "model",
			OwnedBy:  e.OwnedBy,
			Metadata: modelListMetadata{Providers: e.Providers},
		})
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
