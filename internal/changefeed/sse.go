package changefeed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StreamHandler serves a topic as server-sent events.
func StreamHandler(feed Feed, topic string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		events := make(chan Change, 16)
		unsubscribe, err := feed.Subscribe(r.Context(), topic, func(c Change) {
			select {
			case events <- c:
			default:
				logger.Warn("changefeed: slow subscriber, change dropped", slog.String("topic", topic), slog.String("id", c.ID))
			}
		})
		if err != nil {
			logger.Error("changefeed: subscribe", slog.Any("error", err))
			http.Error(w, "subscription failed", http.StatusServiceUnavailable)
			return
		}
		defer unsubscribe()

		// Server write timeout tidak berlaku untuk stream.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(25 * time.Second)
		defer keepAlive.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case c := <-events:
				payload, err := json.Marshal(c)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", c.Kind, payload)
				flusher.Flush()
			}
		}
	}
}
