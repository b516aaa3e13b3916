// Package domain models NASA FIRMS active fire detections.
//
// # Data Source
//
// Fire detections come from the FIRMS (Fire Information for Resource Management
// System) country API at https://firms.modaps.eosdis.nasa.gov/api/country/csv/.
// One request returns every detection for a single (country, date, source)
// triple as CSV with a header row. Different products carry different column
// sets (MODIS reports brightness/bright_t31, VIIRS reports bright_ti4/bright_ti5),
// but every product shares latitude, longitude and acq_date, and nearly all carry
// acq_time, satellite, confidence and frp.
//
// # FIRMS Data Conventions
//
// Sources:
//
//	VIIRS_SNPP_NRT, VIIRS_NOAA20_NRT, VIIRS_NOAA21_NRT, MODIS_NRT  near real time
//	VIIRS_SNPP_SP, VIIRS_NOAA20_SP, MODIS_SP                        standard processing
//	LANDSAT_NRT                                                      Landsat (US/Canada only)
//
// Publication lag:
//
//	NRT products appear within hours, standard products within weeks. The
//	ingestor therefore queries a trailing window that starts several days back
//	(see [QueryDates]).
//
// Time format:
//
//	acq_time is HHMM in 24-hour UTC, e.g. "0130" = 01:30. Some products emit it
//	as an integer, so "130" means 01:30 and "5" means 00:05. A missing or blank
//	acq_time is treated as 12:00 on the acquisition date.
//
// # Identity
//
// Within one ingestion run a detection is identified by (latitude, longitude,
// acq_date) and the first occurrence wins (see [Dedupe]). In storage the
// identity is (lat, lng, time), enforced by a unique constraint so that
// re-ingesting the same window is a no-op.
package domain
