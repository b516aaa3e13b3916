package domain

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the FIRMS acq_date and request date format.
const DateLayout = "2006-01-02"

// TimestampLayout is the combined observation timestamp format used in storage and logs.
const TimestampLayout = "2006-01-02 15:04:05"

// RawRow is one CSV data row keyed by lower-cased header name.
type RawRow map[string]string

// FireRecord is a validated detection before it is persisted.
type FireRecord struct {
	Latitude        float64
	Longitude       float64
	AcquisitionDate time.Time // UTC midnight of the observation date
	AcquisitionTime string    // HHMM as received; empty means noon
	DataSource      Source

	// Descriptive pass-through fields, not used for identity.
	Satellite  string
	Confidence string
	FRP        string
}

// FirePoint is a persisted detection row.
type FirePoint struct {
	ID   int64     `json:"id,omitempty"`
	Lat  float64   `json:"lat"`
	Lng  float64   `json:"lng"`
	Time time.Time `json:"time"`
}

// Key returns the storage identity of the point, e.g. "36.62,117.32,2025-01-01 01:30:00".
func (p FirePoint) Key() string {
	return fmt.Sprintf("%s,%s,%s",
		strconv.FormatFloat(p.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Lng, 'f', -1, 64),
		p.Time.UTC().Format(TimestampLayout))
}

// UpsertResult reports the outcome of a Store.UpsertMany call.
type UpsertResult struct {
	Inserted int
	Skipped  int
	Stored   []FirePoint // newly inserted points, with IDs where the backend reports them
}

// StoreStats summarizes the contents of the fire point table.
type StoreStats struct {
	Count  int64
	Latest time.Time
}

// ObservedAt combines the acquisition date and time into a UTC timestamp.
// Records produced by Normalize always carry a parseable time.
func (r FireRecord) ObservedAt() time.Time {
	hour, minute, err := parseHHMM(r.AcquisitionTime)
	if err != nil {
		hour, minute = noonHour, 0
	}
	d := r.AcquisitionDate
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
}

// Point converts the record to its storage shape.
func (r FireRecord) Point() FirePoint {
	return FirePoint{
		Lat:  r.Latitude,
		Lng:  r.Longitude,
		Time: r.ObservedAt(),
	}
}

// Points converts records to storage rows, preserving order.
func Points(records []FireRecord) []FirePoint {
	out := make([]FirePoint, len(records))
	for i, r := range records {
		out[i] = r.Point()
	}
	return out
}
