package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"iaeco.app/internal/session"
)

// Stream sends session changes as Server-Sent Events, starting with the
// current state.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.sess.Subscribe(ctx)

	_, _ = w.Write([]byte(": stream started\n\n"))
	writeEvent(w, a.sess.Snapshot())
	flusher.Flush()

	for snap := range ch {
		writeEvent(w, snap)
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, snap session.Snapshot) {
	payload, err := json.Marshal(viewOf(snap))
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: session\ndata: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
