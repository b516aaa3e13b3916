package firms

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
)

var requiredColumns = []string{"latitude", "longitude", "acq_date"}

// ParseCSV reads a FIRMS CSV document into rows keyed by lower-cased header
// name. An empty document yields no rows. Rows shorter than the header are
// kept with the trailing columns absent so the normalizer can decide on them.
func ParseCSV(r io.Reader) ([]domain.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make([]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[i] = strings.ToLower(strings.TrimSpace(h))
		present[cols[i]] = true
	}
	for _, c := range requiredColumns {
		if !present[c] {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, c)
		}
	}

	var rows []domain.RawRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(domain.RawRow, len(cols))
		for i, c := range cols {
			if i < len(rec) {
				row[c] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
