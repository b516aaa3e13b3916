package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
)

// normalizeSlots converts the fetched rows into records in slot order. Rows
// that fail validation are logged, counted by reason, and dropped.
func normalizeSlots(slots [][]domain.RawRow, pairs []pair, logger *slog.Logger, metrics *observability.Metrics) (records []domain.FireRecord, fetched, rejected int) {
	for i, rows := range slots {
		fetched += len(rows)
		for _, row := range rows {
			rec, err := domain.Normalize(row, pairs[i].source)
			if err != nil {
				rejected++
				metrics.RowsRejected.WithLabelValues(domain.RejectReason(err)).Inc()
				logger.Debug("row rejected", "date", pairs[i].date, "source", string(pairs[i].source), "error", err)
				continue
			}
			records = append(records, rec)
		}
	}
	metrics.RowsFetched.Add(float64(fetched))
	return records, fetched, rejected
}
