package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/md-rashed-zaman/easybook/libs/httpx"
)

// Settings reads (GET) or overrides (PUT) the runtime settings. PUT takes a
// flat object of key to value; unknown keys are rejected.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httpx.WriteJSON(w, http.StatusOK, h.settings.Current(r.Context()))
	case http.MethodPut:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if len(raw) == 0 {
			http.Error(w, "no settings given", http.StatusBadRequest)
			return
		}
		overrides := make(map[string]string, len(raw))
		for k, v := range raw {
			overrides[k] = fmt.Sprint(v)
		}
		values, err := h.settings.Update(r.Context(), overrides)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, values)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
