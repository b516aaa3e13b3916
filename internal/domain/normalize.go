package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// noonHour is the hour assigned to detections without an acq_time.
const noonHour = 12

// Normalize validates a raw FIRMS row and maps it onto a FireRecord.
// Rows missing latitude, longitude or acq_date, or carrying values that do not
// parse, are rejected with an error wrapping ErrRowValidation.
func Normalize(row RawRow, source Source) (FireRecord, error) {
	latRaw, err := requireField(row, "latitude")
	if err != nil {
		return FireRecord{}, err
	}
	lngRaw, err := requireField(row, "longitude")
	if err != nil {
		return FireRecord{}, err
	}
	dateRaw, err := requireField(row, "acq_date")
	if err != nil {
		return FireRecord{}, err
	}

	lat, err := parseCoordinate("latitude", latRaw, 90)
	if err != nil {
		return FireRecord{}, err
	}
	lng, err := parseCoordinate("longitude", lngRaw, 180)
	if err != nil {
		return FireRecord{}, err
	}

	date, err := time.ParseInLocation(DateLayout, dateRaw, time.UTC)
	if err != nil {
		return FireRecord{}, reject(ErrInvalidDate, "acq_date %q", dateRaw)
	}

	acqTime := strings.TrimSpace(row["acq_time"])
	if _, _, err := parseHHMM(acqTime); err != nil {
		return FireRecord{}, reject(ErrInvalidTime, "acq_time %q", acqTime)
	}

	return FireRecord{
		Latitude:        lat,
		Longitude:       lng,
		AcquisitionDate: date,
		AcquisitionTime: acqTime,
		DataSource:      source,
		Satellite:       strings.TrimSpace(row["satellite"]),
		Confidence:      strings.TrimSpace(row["confidence"]),
		FRP:             strings.TrimSpace(row["frp"]),
	}, nil
}

func requireField(row RawRow, name string) (string, error) {
	v, ok := row[name]
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", reject(ErrMissingField, "%s", name)
	}
	return v, nil
}

// parseCoordinate parses a decimal degree value and checks it against ±limit.
// Only plain decimal notation is accepted: hex floats, digit separators, NaN
// and infinities are rejected so that garbage never reaches storage.
func parseCoordinate(name, raw string, limit float64) (float64, error) {
	if !isPlainDecimal(raw) {
		return 0, reject(ErrInvalidCoordinate, "%s %q is not a number", name, raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, reject(ErrInvalidCoordinate, "%s %q is not a number", name, raw)
	}
	if v < -limit || v > limit {
		return 0, reject(ErrInvalidCoordinate, "%s %g out of range", name, v)
	}
	return v, nil
}

// isPlainDecimal reports whether s has the form [+-]digits[.digits][(e|E)[+-]digits]
// with at least one mantissa digit.
func isPlainDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits, dot := 0, false
mantissa:
	for ; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break mantissa
		}
	}
	if digits == 0 {
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != 'e' && s[i] != 'E' {
		return false
	}
	i++
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if i == len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseHHMM parses an acq_time value. Blank means noon. Values shorter than
// four digits are integer-encoded HHMM and get zero-padded ("130" -> 01:30).
func parseHHMM(hhmm string) (hour, minute int, err error) {
	if hhmm == "" {
		return noonHour, 0, nil
	}
	if len(hhmm) > 4 {
		return 0, 0, fmt.Errorf("acq_time %q too long", hhmm)
	}
	for _, c := range hhmm {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("acq_time %q is not numeric", hhmm)
		}
	}
	hhmm = strings.Repeat("0", 4-len(hhmm)) + hhmm

	hour, _ = strconv.Atoi(hhmm[:2])
	minute, _ = strconv.Atoi(hhmm[2:])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("acq_time %q out of range", hhmm)
	}
	return hour, minute, nil
}

func reject(cause error, format string, args ...any) error {
	return &rowError{
		cause: cause,
		msg:   cause.Error() + ": " + fmt.Sprintf(format, args...),
	}
}
