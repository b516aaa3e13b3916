package domain

import (
	"fmt"
	"strings"
)

// Source identifies a FIRMS sensor/product.
type Source string

const (
	SourceVIIRSSNPPNRT   Source = "VIIRS_SNPP_NRT"
	SourceVIIRSNOAA20NRT Source = "VIIRS_NOAA20_NRT"
	SourceVIIRSNOAA21NRT Source = "VIIRS_NOAA21_NRT"
	SourceMODISNRT       Source = "MODIS_NRT"
	SourceVIIRSSNPPSP    Source = "VIIRS_SNPP_SP"
	SourceVIIRSNOAA20SP  Source = "VIIRS_NOAA20_SP"
	SourceMODISSP        Source = "MODIS_SP"
	SourceLandsatNRT     Source = "LANDSAT_NRT"
)

var knownSources = map[Source]string{
	SourceVIIRSSNPPNRT:   "VIIRS SNPP",
	SourceVIIRSNOAA20NRT: "VIIRS NOAA-20",
	SourceVIIRSNOAA21NRT: "VIIRS NOAA-21",
	SourceMODISNRT:       "MODIS",
	SourceVIIRSSNPPSP:    "VIIRS SNPP standard",
	SourceVIIRSNOAA20SP:  "VIIRS NOAA-20 standard",
	SourceMODISSP:        "MODIS standard",
	SourceLandsatNRT:     "Landsat",
}

// DefaultSources is the product list queried when none is configured.
var DefaultSources = []Source{
	SourceVIIRSSNPPNRT,
	SourceVIIRSNOAA20NRT,
	SourceMODISNRT,
	SourceVIIRSSNPPSP,
}

// ParseSource validates a product identifier. Matching is case-insensitive.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownSources[src]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
	return src, nil
}

// ParseSources parses a comma-separated product list, dropping blanks and duplicates.
func ParseSources(csv string) ([]Source, error) {
	var out []Source
	seen := make(map[Source]bool)
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		src, err := ParseSource(part)
		if err != nil {
			return nil, err
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out, nil
}

// Label returns a human readable product name.
func (s Source) Label() string {
	if l, ok := knownSources[s]; ok {
		return l
	}
	return string(s)
}
