package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ambrazasp/geofields/internal/application"
	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/ports/output"
)

// FilterRequest is the body of a filter rewrite.
type FilterRequest struct {
	Query any `json:"query"`
}

// ValidateRequest is the body of an offline payload validation.
type ValidateRequest struct {
	Entity   output.Row     `json:"entity"`
	Existing output.Row     `json:"existing,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// NormalizeRequest is the body of a geometry normalization.
type NormalizeRequest struct {
	Geometry any `json:"geometry"`
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":              boolToStatus(details.Healthy),
		"ready":               details.Ready,
		"services_registered": details.ServicesRegistered,
		"components":          details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListServices returns all registered services.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	services := s.registry.ListServices()

	response := make([]map[string]interface{}, len(services))
	for i, svc := range services {
		response[i] = s.formatService(svc)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": response,
		"count":    len(services),
	})
}

// handleGetService returns a specific service.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.formatService(svc))
}

// handleCallAction runs a service action with the JSON body as parameters.
func (s *Server) handleCallAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	params := map[string]any{}
	if err := s.decodeBody(r, &params); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params == nil {
		params = map[string]any{}
	}
	if id, ok := params["id"]; ok {
		params["id"] = integralIDs(id)
	}

	result, err := s.registry.Call(r.Context(), vars["service"]+"."+vars["action"], params)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleFilter rewrites the geometry keys of a list filter.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}

	var req FilterRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query": svc.ApplyGeomFilter(r.Context(), req.Query),
	})
}

// handleValidate checks a payload against the geometry fields of a service
// without storing it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}

	var req ValidateRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := svc.ValidateGeomFields(r.Context(), req.Entity, req.Existing, req.Params)
	var validationErr *domain.ValidationError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
	case errors.As(err, &validationErr):
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":      false,
			"field":      validationErr.Field,
			"constraint": validationErr.Constraint,
			"message":    validationErr.Message,
		})
	default:
		s.handleError(w, err)
	}
}

// handleNormalize returns the stored text of a GeoJSON document.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}

	var req NormalizeRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, stored, err := svc.ParseGeom(r.Context(), req.Geometry)
	if err != nil {
		s.handleError(w, err)
		return
	}

	response := map[string]interface{}{"stored": stored}
	if stored {
		response["wkt"] = text
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleListRecords lists records matching the query parameter and fills the
// fields named by populate.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	var query any
	if raw := q.Get("query"); raw != "" {
		query = raw
	}

	rows, err := svc.List(r.Context(), query)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if populate := splitList(q.Get("populate")); len(populate) > 0 {
		if err := s.registry.Populate(r.Context(), svc.Name(), rows, populate); err != nil {
			s.handleError(w, err)
			return
		}
	}

	if rows == nil {
		rows = []output.Row{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": rows,
		"count":   len(rows),
	})
}

// handleCreateRecord validates, normalizes and inserts a record.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}

	var entity output.Row
	if err := s.decodeBody(r, &entity); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entity == nil {
		entity = output.Row{}
	}

	id, err := svc.Create(r.Context(), entity)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// handleUpdateRecord applies a partial update.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	s.writeRecord(w, r, (*application.Service).Update)
}

// handleReplaceRecord overwrites a record.
func (s *Server) handleReplaceRecord(w http.ResponseWriter, r *http.Request) {
	s.writeRecord(w, r, (*application.Service).Replace)
}

type writeFunc func(svc *application.Service, ctx context.Context, id any, entity output.Row) error

func (s *Server) writeRecord(w http.ResponseWriter, r *http.Request, write writeFunc) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}

	var entity output.Row
	if err := s.decodeBody(r, &entity); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := pathID(mux.Vars(r)["id"])
	if err := write(svc, r.Context(), id, entity); err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id})
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// service resolves the service named in the path and writes a 404 when it
// is not registered.
func (s *Server) service(w http.ResponseWriter, r *http.Request) (*application.Service, bool) {
	svc, err := s.registry.GetService(mux.Vars(r)["service"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Service not found")
		return nil, false
	}
	return svc, true
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func (s *Server) decodeBody(r *http.Request, v any) error {
	body := io.Reader(r.Body)
	if s.config.MaxBodyBytes > 0 {
		body = io.LimitReader(r.Body, s.config.MaxBodyBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return errors.New("failed to read request body")
	}
	if s.config.MaxBodyBytes > 0 && int64(len(data)) > s.config.MaxBodyBytes {
		return errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// formatService formats a service for JSON output.
func (s *Server) formatService(svc *application.Service) map[string]interface{} {
	fields := make([]map[string]interface{}, 0, len(svc.Fields()))
	for _, f := range svc.Fields() {
		field := map[string]interface{}{
			"name":   f.Name,
			"column": f.Column(),
		}
		if f.IsGeometry() {
			geom := map[string]interface{}{
				"type":     f.Geom.EffectiveType(),
				"multi":    f.Geom.Multi,
				"required": f.Geom.Required,
			}
			if len(f.Geom.Types) > 0 {
				geom["types"] = f.Geom.Types
			}
			if f.Geom.Properties.Len() > 0 {
				geom["properties"] = f.Geom.Properties
			}
			if f.Geom.Field != "" {
				geom["field"] = f.Geom.Field
			}
			if f.Geom.Validate != "" {
				geom["validate"] = f.Geom.Validate
			}
			field["geom"] = geom
		}
		fields = append(fields, field)
	}

	return map[string]interface{}{
		"name":        svc.Name(),
		"table":       svc.Table(),
		"primary_key": svc.PrimaryKey(),
		"srid":        svc.SRID(),
		"fields":      fields,
	}
}

// handleError maps application errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   http.StatusText(http.StatusBadRequest),
			"message": validationErr.Message,
			"field":   validationErr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrServiceNotFound):
		s.writeError(w, http.StatusNotFound, "Service not found")
	case errors.Is(err, domain.ErrActionNotFound):
		s.writeError(w, http.StatusNotFound, "Action not found")
	case errors.Is(err, domain.ErrNoRows):
		s.writeError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "Database unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}

// splitList splits a comma separated parameter, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pathID converts a numeric path id to int64 and keeps anything else as text.
func pathID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// integralIDs converts whole JSON numbers to int64 so ids keep their integer
// form when used as mapping keys.
func integralIDs(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = integralIDs(e)
		}
		return out
	}
	return v
}
