package api

import "net/http"

// Chat answers a member's question through the configured model.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	reply, err := h.Assistant.Chat(r.Context(), actorOf(r), req.Message)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatDTO{Reply: reply})
}
