package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"

	"github.com/ambrazasp/geofields/internal/ports/output"
)

// FilterRewriter replaces geometry filter values with raw SQL conditions
// before list and find calls.
type FilterRewriter struct {
	service string
	filters map[string]FilterFunc
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewFilterRewriter creates a rewriter for the filter functions of bindings.
func NewFilterRewriter(
	service string,
	bindings []*FieldBinding,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *FilterRewriter {
	filters := make(map[string]FilterFunc)
	for _, b := range bindings {
		if b.Filter != nil {
			filters[b.Field.Name] = b.Filter
		}
	}
	return &FilterRewriter{
		service: service,
		filters: filters,
		metrics: metrics,
		logger:  logger,
	}
}

// Apply rewrites query. JSON text is decoded first; text that does not
// decode is returned unchanged. Keys of geometry fields are replaced with a
// domain.RawFilter, which is empty when the value imposes no constraint.
// The input map is not modified.
func (r *FilterRewriter) Apply(ctx context.Context, query any) any {
	query = parseIfJSON(query)

	filter, ok := query.(map[string]any)
	if !ok || len(filter) == 0 {
		return query
	}

	out := maps.Clone(filter)
	for key, value := range filter {
		fn, ok := r.filters[key]
		if !ok {
			continue
		}
		raw := fn(ctx, value)
		out[key] = raw
		r.metrics.IncFilterRewrites(r.service, key, !raw.IsEmpty())
	}
	return out
}

// parseIfJSON decodes JSON text, returning v unchanged when it is not text
// or does not decode.
func parseIfJSON(v any) any {
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	default:
		return v
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return v
	}
	return decoded
}
