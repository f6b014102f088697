// Package protocol parses the line format of the edge stream:
//
//	source destination label timestamp
//
// Fields are integers separated by blanks or commas. Blank lines and lines
// starting with '#' or '%' carry no record.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

// ErrNoRecord is returned for blank and comment lines.
var ErrNoRecord = errors.New("no record on line")

// Record is one parsed line, with its raw timestamp.
type Record struct {
	Source types.Vertex
	Dest   types.Vertex
	Label  types.Label
	Time   int64
}

// Parse parses a single line.
func Parse(raw string) (Record, error) {
	line := strings.TrimSpace(raw)
	if line == "" || line[0] == '#' || line[0] == '%' {
		return Record{}, ErrNoRecord
	}

	parts := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(parts) != 4 {
		return Record{}, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}

	var vals [4]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return Record{Source: vals[0], Dest: vals[1], Label: vals[2], Time: vals[3]}, nil
}
