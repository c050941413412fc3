package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/translate"
)

// chunkDelay paces the emulated stream so clients render it progressively.
const chunkDelay = 20 * time.Millisecond

// streamCompletion emits a finished reply as an SSE delta stream. The page
// already produced the full text; streaming here is protocol emulation.
func (s *Server) streamCompletion(w http.ResponseWriter, model, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	chunks := translate.NewChunks(model, reply)
	for i, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Error(logging.CategoryHTTP, "stream_marshal_failed", err.Error(), nil)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flush()
		if i < len(chunks)-1 {
			time.Sleep(chunkDelay)
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flush()
}
