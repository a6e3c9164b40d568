package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ambrazasp/geofields/internal/application"
	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

type sqlOptions struct {
	dialect string
	field   string
	as      string
	srid    int
}

func newSQLCmd() *cobra.Command {
	opts := &sqlOptions{}

	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Print the SQL fragments generated for a GeoJSON document",
	}
	cmd.PersistentFlags().StringVar(&opts.dialect, "dialect", sqlfrag.DialectPostGIS, "SQL dialect (postgis, spatialite)")
	cmd.PersistentFlags().StringVar(&opts.field, "field", "geom", "geometry column")
	cmd.PersistentFlags().IntVar(&opts.srid, "srid", 3346, "target SRID, 0 disables transforms")

	intersects := &cobra.Command{
		Use:   "intersects <file|->",
		Short: "Print the intersection filter for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, doc, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			sql, err := builder.Intersects(sqlfrag.Ident(opts.field), doc, opts.srid)
			if err != nil {
				return err
			}
			if sql == "" {
				return fmt.Errorf("document holds no geometry")
			}
			fmt.Fprintln(cmd.OutOrStdout(), sql)
			return nil
		},
	}

	text := &cobra.Command{
		Use:   "text <file|->",
		Short: "Print the expression that turns a document into stored text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, doc, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			sql, err := builder.GeometriesAsText(geojson.Geometries(doc), opts.srid)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sql)
			return nil
		},
	}

	area := &cobra.Command{
		Use:   "area",
		Short: "Print the area projection of a geometry column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := sqlfrag.DialectByName(opts.dialect)
			if err != nil {
				return err
			}
			builder := sqlfrag.NewBuilder(d)
			fmt.Fprintln(cmd.OutOrStdout(), builder.Area(sqlfrag.Ident(opts.field), sqlfrag.Ident(opts.as), opts.srid))
			return nil
		},
	}
	area.Flags().StringVar(&opts.as, "as", "area", "result alias")

	cmd.AddCommand(intersects, text, area)
	return cmd
}

func (o *sqlOptions) load(cmd *cobra.Command, path string) (sqlfrag.Builder, *geojson.Document, error) {
	d, err := sqlfrag.DialectByName(o.dialect)
	if err != nil {
		return sqlfrag.Builder{}, nil, err
	}
	data, err := readInput(cmd, path)
	if err != nil {
		return sqlfrag.Builder{}, nil, err
	}
	doc, err := geojson.Parse(data)
	if err != nil {
		return sqlfrag.Builder{}, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sqlfrag.NewBuilder(d), doc, nil
}

type validateOptions struct {
	types    []string
	multi    bool
	required bool
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate a GeoJSON document as a geometry field value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			field := domain.Field{
				Name: "geom",
				Geom: &domain.GeomConfig{
					Type:     domain.GeomTypeGeom,
					Multi:    opts.multi,
					Types:    opts.types,
					Required: opts.required,
				},
			}
			valid, msg := application.ValidateGeometry(context.Background(), application.ValidateParams{
				Value: data,
				Field: &field,
			})
			if !valid {
				return fmt.Errorf("%s: %s", args[0], msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "allowed geometry types (e.g., Polygon,MultiPolygon)")
	cmd.Flags().BoolVar(&opts.multi, "multi", false, "allow more than one feature")
	cmd.Flags().BoolVar(&opts.required, "required", false, "reject empty documents")

	return cmd
}

// readInput reads a file, or standard input when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
