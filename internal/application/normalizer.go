package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// Normalizer converts incoming GeoJSON documents to the well-known text the
// database stores, by asking the database to parse them.
type Normalizer struct {
	db      output.Database
	builder sqlfrag.Builder
	cache   *lru.Cache[uint64, string]
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewNormalizer creates a new normalizer. A positive cacheSize enables an
// LRU cache of normalized text keyed by the generated SQL expression.
func NewNormalizer(
	db output.Database,
	builder sqlfrag.Builder,
	cacheSize int,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) (*Normalizer, error) {
	n := &Normalizer{
		db:      db,
		builder: builder,
		metrics: metrics,
		logger:  logger,
	}
	if cacheSize > 0 {
		c, err := lru.New[uint64, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating normalizer cache: %w", err)
		}
		n.cache = c
	}
	return n, nil
}

// Normalize returns the well-known text of the geometries in v. The boolean
// is false when there is nothing to store: v is empty, structurally invalid
// or holds no geometry. Invalid input is not an error here; the entity
// validator reports it.
func (n *Normalizer) Normalize(ctx context.Context, v any) (string, bool, error) {
	if geojson.IsEmpty(v) {
		return "", false, nil
	}
	doc, err := geojson.Parse(v)
	if err != nil {
		n.logger.Debug("skipping unparseable geometry", "error", err)
		return "", false, nil
	}
	if res := geojson.Validate(doc); !res.Valid {
		n.logger.Debug("skipping invalid geometry", "reason", res.Error)
		return "", false, nil
	}

	geometries := geojson.Geometries(doc)
	if len(geometries) == 0 {
		return "", false, nil
	}

	expr, err := n.builder.GeometriesAsText(geometries, 0)
	if err != nil {
		return "", false, err
	}

	key := xxhash.Sum64String(expr)
	if n.cache != nil {
		if text, ok := n.cache.Get(key); ok {
			n.metrics.IncNormalizeCache(true)
			return text, true, nil
		}
		n.metrics.IncNormalizeCache(false)
	}

	start := time.Now()
	row, err := n.db.SelectRaw(ctx, expr+" as geom")
	n.metrics.ObserveQueryDuration("", "normalize", time.Since(start))
	n.metrics.IncQueryCount("", "normalize", err == nil)
	if err != nil {
		return "", false, fmt.Errorf("normalizing geometry: %w", err)
	}

	text := stringValue(row["geom"])
	if text == "" {
		return "", false, nil
	}
	if n.cache != nil {
		n.cache.Add(key, text)
	}
	return text, true, nil
}

// stringValue returns driver text values as a string.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
