package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// handleThoughtStream serves a Server-Sent Events stream of reasoning
// steps for one session. Each new step is sent as one "step" event with
// a JSON body. The stream polls the recorder until the client
// disconnects or a read fails; ?after=N resumes mid-trace.
func (s *Server) handleThoughtStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		after = n
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	// The stream must outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sendDone := func(reason string) {
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", reason)
		flusher.Flush()
	}

	tick := time.NewTicker(s.streamPoll)
	defer tick.Stop()

	for {
		steps, err := s.recorder.ReadAfter(r.Context(), sessionID, after)
		if err != nil {
			sendDone("read failed")
			return
		}
		for _, step := range steps {
			data, err := json.Marshal(step)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: step\ndata: %s\n\n", data)
			after = step.Seq
		}
		if len(steps) > 0 {
			flusher.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
		}
	}
}
