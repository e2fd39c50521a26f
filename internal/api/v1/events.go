package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leadengine/instance-sync/internal/api/common"
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/logger"
)

const (
	subscriberBuffer  = 32
	keepAliveInterval = 25 * time.Second
)

// streamEvents handles GET /v1/tenants/{tenantID}/events as a server-sent
// event stream of the tenant's channel. Slow readers miss events.
func (rr *Routes) streamEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.PathParam(r, "tenantID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rr.bus == nil {
		common.WriteErrorResponse(w, "event stream is disabled", http.StatusNotImplemented)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		common.WriteErrorResponse(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := rr.bus.Subscribe(tenantID, subscriberBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": subscribed %s\n\n", events.Channel(tenantID))
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Warnw("Failed to encode event", "tenant_id", tenantID, "kind", event.Kind, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
