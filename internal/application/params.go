package application

import (
	"fmt"

	"github.com/ambrazasp/geofields/internal/domain"
)

// idsParam reads the id parameter of a populate action. A list selects many
// records and reports multi; anything else selects one.
func idsParam(v any) (ids []any, multi bool, err error) {
	switch t := v.(type) {
	case nil:
		return nil, false, fmt.Errorf("%w: missing", domain.ErrInvalidID)
	case []any:
		return t, true, nil
	case []string:
		return toAny(t), true, nil
	case []int:
		return toAny(t), true, nil
	case []int64:
		return toAny(t), true, nil
	case []float64:
		return toAny(t), true, nil
	case map[string]any, []byte:
		return nil, false, fmt.Errorf("%w: %T", domain.ErrInvalidID, v)
	}
	return []any{v}, false, nil
}

func toAny[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// propertiesParam reads the properties parameter of a populate action: a
// domain.Properties value, a list of keys or a key to column mapping.
func propertiesParam(v any) (domain.Properties, error) {
	switch t := v.(type) {
	case nil:
		return domain.Properties{}, nil
	case domain.Properties:
		return t, nil
	case []string:
		return domain.PropertiesFromList(t), nil
	case map[string]string:
		return domain.PropertiesFromMap(t), nil
	case []any:
		keys := make([]string, 0, len(t))
		for _, k := range t {
			s, ok := k.(string)
			if !ok {
				return domain.Properties{}, invalidProperties(v)
			}
			keys = append(keys, s)
		}
		return domain.PropertiesFromList(keys), nil
	case map[string]any:
		m := make(map[string]string, len(t))
		for k, c := range t {
			s, ok := c.(string)
			if !ok {
				return domain.Properties{}, invalidProperties(v)
			}
			m[k] = s
		}
		return domain.PropertiesFromMap(m), nil
	}
	return domain.Properties{}, invalidProperties(v)
}

func invalidProperties(v any) error {
	return &domain.ValidationError{
		Field:      "properties",
		Value:      v,
		Constraint: "list or mapping of strings",
		Message:    "invalid properties",
	}
}
