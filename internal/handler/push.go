package handler

import "net/http"

type PushHandler struct {
	publicKey string
}

func NewPushHandler(publicKey string) *PushHandler {
	return &PushHandler{publicKey: publicKey}
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusNotFound, "push not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}
