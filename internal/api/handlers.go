package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/staffreg/internal/apperr"
	"github.com/starford/staffreg/internal/staffservice"
)

// maxSourceBytes caps an uploaded source file.
const maxSourceBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc    *staffservice.Service
	events Events
}

// NewHandler creates a new Handler. events may be nil.
func NewHandler(svc *staffservice.Service, events Events) *Handler {
	return &Handler{svc: svc, events: events}
}

// urlParam returns a decoded chi URL parameter. Clients may percent-encode
// names with spaces or slashes.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// sourcePath extracts the source path (everything after /sources/).
func sourcePath(r *http.Request) string {
	return strings.TrimPrefix(urlParam(r, "*"), "/")
}

// optionalInt parses an integer query parameter. A missing parameter yields nil.
func optionalInt(q url.Values, key string) (*int, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListEmployees handles GET /api/employees.
//
//	@Summary		List employees, optionally within an age range
//	@Tags			employees
//	@Produce		json
//	@Param			min_age	query		int	false	"Minimum age, inclusive"
//	@Param			max_age	query		int	false	"Maximum age, inclusive"
//	@Success		200		{object}	EmployeeListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/employees [get]
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minAge, err := optionalInt(q, "min_age")
	if err != nil {
		writeError(w, http.StatusBadRequest, "min_age must be an integer")
		return
	}
	maxAge, err := optionalInt(q, "max_age")
	if err != nil {
		writeError(w, http.StatusBadRequest, "max_age must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, employeeList(h.svc.Employees(r.Context(), minAge, maxAge)))
}

// GetEmployee handles GET /api/employees/{name}.
//
//	@Summary		Get one employee by exact name
//	@Tags			employees
//	@Produce		json
//	@Param			name	path		string	true	"Employee name"
//	@Success		200		{object}	Employee
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/employees/{name} [get]
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")
	e, err := h.svc.Employee(r.Context(), name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			slog.Error("get employee failed", slog.String("name", name), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ClearEmployees handles DELETE /api/employees.
//
//	@Summary		Empty the registry until the next reload
//	@Tags			employees
//	@Success		204	"Registry cleared"
//	@Security		BearerAuth
//	@Router			/employees [delete]
func (h *Handler) ClearEmployees(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear(r.Context())
	if h.events != nil {
		h.events.PublishCleared()
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Find employees by name prefix
//	@Tags			employees
//	@Produce		json
//	@Param			prefix	query		string	true	"Name prefix"
//	@Success		200		{object}	EmployeeListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'prefix' is required")
		return
	}
	writeJSON(w, http.StatusOK, employeeList(h.svc.Search(r.Context(), prefix)))
}

// Departments handles GET /api/departments.
//
//	@Summary		Group employees by department
//	@Tags			employees
//	@Produce		json
//	@Success		200	{object}	DepartmentsResponse
//	@Security		BearerAuth
//	@Router			/departments [get]
func (h *Handler) Departments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DepartmentsResponse{Departments: h.svc.Departments(r.Context())})
}

// Reports handles GET /api/reports/{manager}.
//
//	@Summary		List the reports of a manager
//	@Tags			employees
//	@Produce		json
//	@Param			manager	path		string	true	"Manager name"
//	@Param			direct	query		bool	false	"Only direct reports"
//	@Success		200		{object}	EmployeeListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/{manager} [get]
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	h.reports(w, r, urlParam(r, "manager"))
}

// ReportsQuery handles GET /api/reports?manager=NAME. An empty manager
// selects the employees nobody manages, which the path form cannot express.
//
//	@Summary		List the reports of a manager given as a query parameter
//	@Tags			employees
//	@Produce		json
//	@Param			manager	query		string	true	"Manager name, empty for top-level employees"
//	@Param			direct	query		bool	false	"Only direct reports"
//	@Success		200		{object}	EmployeeListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports [get]
func (h *Handler) ReportsQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("manager") {
		writeError(w, http.StatusBadRequest, "query parameter 'manager' is required")
		return
	}
	h.reports(w, r, q.Get("manager"))
}

func (h *Handler) reports(w http.ResponseWriter, r *http.Request, manager string) {
	direct := false
	if raw := r.URL.Query().Get("direct"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "direct must be a boolean")
			return
		}
		direct = v
	}
	writeJSON(w, http.StatusOK, employeeList(h.svc.Reports(r.Context(), manager, direct)))
}

// WorkingOn handles GET /api/workdays.
//
//	@Summary		List employees working on any of the given days
//	@Tags			employees
//	@Produce		json
//	@Param			day		query		[]string	false	"Day token, repeatable"
//	@Param			days	query		string		false	"Comma-separated day tokens"
//	@Success		200		{object}	EmployeeListResponse
//	@Security		BearerAuth
//	@Router			/workdays [get]
func (h *Handler) WorkingOn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := append([]string(nil), q["day"]...)
	for _, d := range strings.Split(q.Get("days"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}
	writeJSON(w, http.StatusOK, employeeList(h.svc.WorkingOn(r.Context(), days)))
}

// Stats handles GET /api/stats.
//
//	@Summary		Registry statistics
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	staffservice.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

// Reload handles POST /api/reload.
//
//	@Summary		Reload the registry from the source directory
//	@Tags			registry
//	@Produce		json
//	@Param			force	query		bool	false	"Reload even if sources are unchanged"
//	@Success		200		{object}	ReloadResult
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reload [post]
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, err := h.svc.Reload(r.Context(), force)
	if err != nil {
		h.writeReloadError(w, "reload", err)
		return
	}
	h.announce(res)
	writeJSON(w, http.StatusOK, res)
}

// ListSources handles GET /api/sources.
//
//	@Summary		List source files
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	SourcesResponse
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := h.svc.Sources(r.Context())
	if err != nil {
		slog.Error("list sources failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "source directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, SourcesResponse{Sources: srcs})
}

// PutSource handles PUT /api/sources/*. The body is the raw file content.
//
//	@Summary		Create or replace a source file, then reload
//	@Tags			sources
//	@Accept			plain
//	@Produce		json
//	@Param			path	path		string	true	"Source path"
//	@Success		200		{object}	ReloadResult
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{path} [put]
func (h *Handler) PutSource(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSourceBytes)
	path := sourcePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("source exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	res, err := h.svc.PutSource(r.Context(), path, body)
	if err != nil {
		if errors.Is(err, apperr.ErrIOUnavailable) {
			h.writeReloadError(w, "put source", err)
			return
		}
		slog.Warn("put source rejected", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.announce(res)
	writeJSON(w, http.StatusOK, res)
}

// DeleteSource handles DELETE /api/sources/*.
//
//	@Summary		Delete a source file, then reload
//	@Tags			sources
//	@Produce		json
//	@Param			path	path		string	true	"Source path"
//	@Success		200		{object}	ReloadResult
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{path} [delete]
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	path := sourcePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	res, err := h.svc.DeleteSource(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		default:
			h.writeReloadError(w, "delete source", err)
		}
		return
	}
	h.announce(res)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) announce(res *staffservice.ReloadResult) {
	if h.events != nil && res.Changed {
		h.events.PublishReload(res)
	}
}

func (h *Handler) writeReloadError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", slog.String("error", err.Error()))
	if errors.Is(err, apperr.ErrIOUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "source directory unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
