package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Driver     string            `json:"driver,omitempty"`
	Ephemeral  bool              `json:"ephemeral"`
	Components []componentStatus `json:"components"`
}

type healthCheck struct {
	name string
	ping func(context.Context) error
}

func (h *Handler) healthChecks() []healthCheck {
	var checks []healthCheck
	if h.Store != nil {
		checks = append(checks, healthCheck{name: "datastore", ping: h.Store.Ping})
	}
	return append(checks, healthCheck{name: "sessions", ping: h.sessionManager().Ping})
}

// Health pings the datastore and session store. Any failing component turns
// the whole response into a 503 "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Driver: h.Datastore.Driver, Ephemeral: h.Datastore.Ephemeral}
	code := http.StatusOK
	for _, check := range h.healthChecks() {
		status := componentStatus{Component: check.name, Status: "ok"}
		if err := check.ping(ctx); err != nil {
			status.Status, status.Error = "degraded", err.Error()
			resp.Status, code = "degraded", http.StatusServiceUnavailable
		}
		resp.Components = append(resp.Components, status)
	}
	writeJSON(w, code, resp)
}
