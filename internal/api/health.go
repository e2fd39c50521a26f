package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadengine/instance-sync/internal/api/common"
	"github.com/leadengine/instance-sync/internal/service"
	"github.com/leadengine/instance-sync/internal/versions"
)

// HealthRouter creates a router for the probe endpoints
func HealthRouter(svc service.InstanceService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler answers 503 while the persisted store is unreachable
func readinessHandler(svc service.InstanceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "InstanceService not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
