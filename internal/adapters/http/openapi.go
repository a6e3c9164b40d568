package http

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIFS embed.FS

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
)

// getOpenAPIJSON returns the embedded OpenAPI document as JSON. The YAML is
// converted once and cached.
func getOpenAPIJSON() ([]byte, error) {
	openAPIOnce.Do(func() {
		openAPIJSON, openAPIErr = convertOpenAPIToJSON()
	})
	return openAPIJSON, openAPIErr
}

func convertOpenAPIToJSON() ([]byte, error) {
	data, err := openAPIFS.ReadFile("openapi.yaml")
	if err != nil {
		return nil, err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi.yaml: %w", err)
	}

	return json.MarshalIndent(jsonCompatible(doc), "", "  ")
}

// jsonCompatible converts YAML mappings with non-string keys into
// string-keyed maps. Integer keys such as response codes are formatted.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonCompatible(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = jsonCompatible(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonCompatible(e)
		}
		return out
	default:
		return v
	}
}
