package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/staffreg/internal/staffservice"
)

// Events is the SSE side of the API: the stream endpoint plus the
// notifications that mutating handlers send.
type Events interface {
	http.Handler
	PublishReload(data any)
	PublishCleared()
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, is mounted at GET /events inside the auth group and
// notified after reloads and clears.
func NewRouter(svc *staffservice.Service, authEnabled bool, token string, events Events) chi.Router {
	h := NewHandler(svc, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Employees.
	r.Get("/employees", h.ListEmployees)
	r.Delete("/employees", h.ClearEmployees)
	r.Get("/employees/{name}", h.GetEmployee)
	r.Get("/search", h.Search)
	r.Get("/departments", h.Departments)
	r.Get("/reports", h.ReportsQuery)
	r.Get("/reports/{manager}", h.Reports)
	r.Get("/workdays", h.WorkingOn)
	r.Get("/stats", h.Stats)

	// Sources.
	r.Post("/reload", h.Reload)
	r.Get("/sources", h.ListSources)
	r.Put("/sources/*", h.PutSource)
	r.Delete("/sources/*", h.DeleteSource)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
