package domain

// recordKey is the per-run natural key of a detection.
type recordKey struct {
	lat  float64
	lng  float64
	date string
}

// Dedupe keeps the first record seen for each (latitude, longitude,
// acquisition date) and drops later collisions. Input order is preserved, so
// callers must pass records in fetch order for results to be reproducible.
func Dedupe(records []FireRecord) []FireRecord {
	seen := make(map[recordKey]struct{}, len(records))
	out := make([]FireRecord, 0, len(records))
	for _, r := range records {
		k := recordKey{lat: r.Latitude, lng: r.Longitude, date: r.AcquisitionDate.Format(DateLayout)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
