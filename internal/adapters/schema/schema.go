// Package schema loads service declarations from a YAML schema file.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ambrazasp/geofields/internal/application"
	"github.com/ambrazasp/geofields/internal/domain"
)

// File is the root of a schema document.
type File struct {
	Services []ServiceSpec `yaml:"services"`
}

// ServiceSpec declares one service.
type ServiceSpec struct {
	Name       string      `yaml:"name"`
	Table      string      `yaml:"table"`
	PrimaryKey string      `yaml:"primary_key"`
	SRID       int         `yaml:"srid"`
	Fields     []FieldSpec `yaml:"fields"`
}

// FieldSpec declares one field of a service.
type FieldSpec struct {
	Name   string   `yaml:"name"`
	Column string   `yaml:"column"`
	Geom   GeomSpec `yaml:"geom"`
}

// GeomSpec holds the geom option of a field, either a boolean or an
// options mapping.
type GeomSpec struct {
	Config *domain.GeomConfig
}

type geomOptions struct {
	Type       string         `yaml:"type"`
	Multi      bool           `yaml:"multi"`
	Types      []string       `yaml:"types"`
	Properties PropertiesSpec `yaml:"properties"`
	Field      string         `yaml:"field"`
	Required   bool           `yaml:"required"`
	Validate   string         `yaml:"validate"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *GeomSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("line %d: geom must be a boolean or a mapping", node.Line)
		}
		g.Config = nil
		if enabled {
			g.Config = domain.DefaultGeomConfig()
		}
		return nil
	case yaml.MappingNode:
		var opts geomOptions
		if err := node.Decode(&opts); err != nil {
			return err
		}
		g.Config = &domain.GeomConfig{
			Type:       domain.GeomType(opts.Type),
			Multi:      opts.Multi,
			Types:      opts.Types,
			Properties: opts.Properties.Properties,
			Field:      opts.Field,
			Required:   opts.Required,
			Validate:   opts.Validate,
		}
		return nil
	default:
		return fmt.Errorf("line %d: geom must be a boolean or a mapping", node.Line)
	}
}

// PropertiesSpec accepts a list of column names or a key to column mapping.
type PropertiesSpec struct {
	domain.Properties
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PropertiesSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var keys []string
		if err := node.Decode(&keys); err != nil {
			return err
		}
		p.Properties = domain.PropertiesFromList(keys)
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		p.Properties = domain.PropertiesFromMap(m)
		return nil
	default:
		return fmt.Errorf("line %d: properties must be a list or a mapping", node.Line)
	}
}

// LoadFile reads the schema at path.
func LoadFile(path string, defaultSRID int) ([]application.ServiceConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schema: %w", err)
	}
	defer f.Close()

	return Load(f, defaultSRID)
}

// Parse decodes a schema document held in memory.
func Parse(data []byte, defaultSRID int) ([]application.ServiceConfig, error) {
	return Load(bytes.NewReader(data), defaultSRID)
}

// Load decodes a schema document and converts it into service configs.
// Services without an explicit srid use defaultSRID.
func Load(r io.Reader, defaultSRID int) ([]application.ServiceConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domain.ConfigError{Field: "schema", Message: err.Error()}
	}

	return file.ServiceConfigs(defaultSRID)
}

// ServiceConfigs converts the document into service configs.
func (f *File) ServiceConfigs(defaultSRID int) ([]application.ServiceConfig, error) {
	seen := make(map[string]struct{}, len(f.Services))
	configs := make([]application.ServiceConfig, 0, len(f.Services))

	for i, svc := range f.Services {
		if svc.Name == "" {
			return nil, &domain.ConfigError{
				Field:   fmt.Sprintf("services[%d].name", i),
				Message: "service name is required",
			}
		}
		if _, dup := seen[svc.Name]; dup {
			return nil, &domain.ConfigError{
				Field:   fmt.Sprintf("services[%d].name", i),
				Message: fmt.Sprintf("service %q is declared twice", svc.Name),
			}
		}
		seen[svc.Name] = struct{}{}

		srid := svc.SRID
		if srid == 0 {
			srid = defaultSRID
		}

		fields := make([]domain.Field, 0, len(svc.Fields))
		names := make(map[string]struct{}, len(svc.Fields))
		for j, fs := range svc.Fields {
			if fs.Name == "" {
				return nil, &domain.ConfigError{
					Field:   fmt.Sprintf("%s.fields[%d].name", svc.Name, j),
					Message: "field name is required",
				}
			}
			if _, dup := names[fs.Name]; dup {
				return nil, &domain.ConfigError{
					Field:   fmt.Sprintf("%s.fields.%s", svc.Name, fs.Name),
					Message: "field is declared twice",
				}
			}
			names[fs.Name] = struct{}{}

			fields = append(fields, domain.Field{
				Name:       fs.Name,
				ColumnName: fs.Column,
				Geom:       fs.Geom.Config,
			})
		}

		configs = append(configs, application.ServiceConfig{
			Name:       svc.Name,
			Table:      svc.Table,
			PrimaryKey: svc.PrimaryKey,
			Fields:     fields,
			SRID:       srid,
		})
	}

	return configs, nil
}
