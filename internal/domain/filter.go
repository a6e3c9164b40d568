package domain

import "encoding/json"

// RawFilter wraps a raw SQL boolean expression for a query filter value.
// The SQL is spliced verbatim into a WHERE clause. An empty RawFilter
// carries no clause and must be treated as no constraint.
type RawFilter struct {
	SQL string
}

// IsEmpty returns true if the filter carries no clause.
func (f RawFilter) IsEmpty() bool {
	return f.SQL == ""
}

// MarshalJSON encodes the filter as {"$raw": sql}, or {} when empty.
func (f RawFilter) MarshalJSON() ([]byte, error) {
	if f.IsEmpty() {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string{"$raw": f.SQL})
}

// PopulateStrategy tells the host how to fetch a field's value after the
// primary record fetch.
type PopulateStrategy struct {
	KeyField string         // Record field whose values are passed as ids
	Action   string         // Fully qualified action, "<service>.<action>"
	Params   map[string]any // Extra action parameters
}
