// Package v1 provides the tenant-scoped instance endpoints.
package v1

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leadengine/instance-sync/internal/api/common"
	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/service"
	"github.com/leadengine/instance-sync/internal/storage"
)

// ActorHeader names the caller recorded in instance history
const ActorHeader = "X-Actor-ID"

// CreateInstanceRequest is the body of POST /instances
type CreateInstanceRequest struct {
	Name       string `json:"name"`
	InstanceID string `json:"instanceId,omitempty"`
}

// DisconnectInstanceRequest is the optional body of POST /instances/{instanceID}/disconnect
type DisconnectInstanceRequest struct {
	Wipe bool `json:"wipe,omitempty"`
}

// Routes holds the instance handlers
type Routes struct {
	service service.InstanceService
	bus     *events.Bus
}

// NewRoutes creates Routes. A nil bus disables the event stream.
func NewRoutes(svc service.InstanceService, bus *events.Bus) *Routes {
	return &Routes{service: svc, bus: bus}
}

// Router mounts the tenant routes
func Router(svc service.InstanceService, bus *events.Bus) http.Handler {
	routes := NewRoutes(svc, bus)

	r := chi.NewRouter()
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/events", routes.streamEvents)
		r.Get("/disconnect-jobs", routes.listDisconnectJobs)

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", routes.listInstances)
			r.Post("/", routes.createInstance)
			r.Post("/sync", routes.syncInstances)

			r.Route("/{instanceID}", func(r chi.Router) {
				r.Delete("/", routes.deleteInstance)
				r.Post("/connect", routes.connectInstance)
				r.Post("/disconnect", routes.disconnectInstance)
				r.Get("/qr", routes.getQRCode)
				r.Get("/status", routes.getStatus)
			})
		})
	})
	return r
}

// listInstances handles GET /v1/tenants/{tenantID}/instances?refresh=&snapshots=
func (rr *Routes) listInstances(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.PathParam(r, "tenantID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	refresh, err := common.ParseBoolQuery(r, "refresh")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	snapshots, err := common.ParseBoolQuery(r, "snapshots")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := rr.service.ListInstances(r.Context(), tenantID, service.ListOptions{
		Refresh:   refresh,
		Snapshots: snapshots != nil && *snapshots,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, view, http.StatusOK)
}

// syncInstances handles POST /v1/tenants/{tenantID}/instances/sync
func (rr *Routes) syncInstances(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.PathParam(r, "tenantID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := rr.service.SyncInstances(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, view, http.StatusOK)
}

// createInstance handles POST /v1/tenants/{tenantID}/instances
func (rr *Routes) createInstance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.PathParam(r, "tenantID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body CreateInstanceRequest
	if err := common.DecodeJSONBody(r, &body); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	inst, err := rr.service.CreateInstance(r.Context(), service.CreateRequest{
		TenantID:   tenantID,
		Name:       body.Name,
		InstanceID: body.InstanceID,
		Actor:      r.Header.Get(ActorHeader),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, inst, http.StatusCreated)
}

// deleteInstance handles DELETE /v1/tenants/{tenantID}/instances/{instanceID}?wipe=
func (rr *Routes) deleteInstance(w http.ResponseWriter, r *http.Request) {
	tenantID, instanceID, ok := instancePath(w, r)
	if !ok {
		return
	}
	wipe, err := common.ParseBoolQuery(r, "wipe")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = rr.service.DeleteInstance(r.Context(), tenantID, instanceID, service.DeleteRequest{
		Wipe:  wipe != nil && *wipe,
		Actor: r.Header.Get(ActorHeader),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// connectInstance handles POST /v1/tenants/{tenantID}/instances/{instanceID}/connect
func (rr *Routes) connectInstance(w http.ResponseWriter, r *http.Request) {
	tenantID, instanceID, ok := instancePath(w, r)
	if !ok {
		return
	}
	var body broker.ConnectOptions
	if err := common.DecodeJSONBody(r, &body); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	inst, err := rr.service.ConnectInstance(r.Context(), tenantID, instanceID, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, inst, http.StatusOK)
}

// disconnectInstance handles POST /v1/tenants/{tenantID}/instances/{instanceID}/disconnect.
// A queued retry answers 202.
func (rr *Routes) disconnectInstance(w http.ResponseWriter, r *http.Request) {
	tenantID, instanceID, ok := instancePath(w, r)
	if !ok {
		return
	}
	var body DisconnectInstanceRequest
	if err := common.DecodeJSONBody(r, &body); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.service.DisconnectInstance(r.Context(), tenantID, instanceID, service.DisconnectRequest{
		Wipe:  body.Wipe,
		Actor: r.Header.Get(ActorHeader),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	common.WriteJSONResponse(w, result, status)
}

// getQRCode handles GET /v1/tenants/{tenantID}/instances/{instanceID}/qr
func (rr *Routes) getQRCode(w http.ResponseWriter, r *http.Request) {
	tenantID, instanceID, ok := instancePath(w, r)
	if !ok {
		return
	}
	qr, err := rr.service.GetQRCode(r.Context(), tenantID, instanceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, qr, http.StatusOK)
}

// getStatus handles GET /v1/tenants/{tenantID}/instances/{instanceID}/status
func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, instanceID, ok := instancePath(w, r)
	if !ok {
		return
	}
	st, err := rr.service.GetStatus(r.Context(), tenantID, instanceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

// listDisconnectJobs handles GET /v1/tenants/{tenantID}/disconnect-jobs
func (rr *Routes) listDisconnectJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.PathParam(r, "tenantID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobs, err := rr.service.ListDisconnectJobs(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, map[string]any{"jobs": jobs}, http.StatusOK)
}

func instancePath(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	tenantID, err := common.PathParam(r, "tenantID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	instanceID, err := common.PathParam(r, "instanceID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return tenantID, instanceID, true
}

// writeServiceError maps service, broker and storage failures onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		timeoutErr *broker.TimeoutError
		rateErr    *broker.RateLimitedError
		authErr    *broker.AuthRejectedError
		brokerErr  *broker.Error
	)

	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		common.WriteCodedErrorResponse(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest)
	case errors.Is(err, service.ErrInstanceNotFound):
		common.WriteCodedErrorResponse(w, err.Error(), "INSTANCE_NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, broker.ErrNotConfigured):
		common.WriteCodedErrorResponse(w, err.Error(), "BROKER_NOT_CONFIGURED", http.StatusServiceUnavailable)
	case errors.As(err, &timeoutErr):
		common.WriteCodedErrorResponse(w, err.Error(), "BROKER_TIMEOUT", http.StatusGatewayTimeout)
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}
		common.WriteCodedErrorResponse(w, err.Error(), "BROKER_RATE_LIMITED", http.StatusTooManyRequests)
	case errors.As(err, &authErr):
		common.WriteCodedErrorResponse(w, err.Error(), "BROKER_AUTH_REJECTED", http.StatusBadGateway)
	case errors.As(err, &brokerErr):
		code := brokerErr.Code
		if code == "" {
			code = fmt.Sprintf("BROKER_HTTP_%d", brokerErr.StatusCode)
		}
		common.WriteCodedErrorResponse(w, err.Error(), code, http.StatusBadGateway)
	case storage.IsStorageError(err):
		common.WriteCodedErrorResponse(w, err.Error(), "STORAGE_UNAVAILABLE", http.StatusServiceUnavailable)
	default:
		logger.Errorf("Unhandled instance operation error: %v", err)
		common.WriteErrorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}
