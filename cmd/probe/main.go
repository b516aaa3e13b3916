// Command probe checks that the fire point store is reachable and that the
// FIRMS API answers for a few trailing dates. It prints a PASS/FAIL line per
// phase and exits non-zero when any phase fails.
//
// Usage:
//
//	go run ./cmd/probe -lag 7 -lag 8 -lag 9
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/firms-fire-etl/internal/adapter/firms"
	"github.com/couchcryptid/firms-fire-etl/internal/config"
	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
	"github.com/couchcryptid/firms-fire-etl/internal/pipeline"
	"github.com/couchcryptid/firms-fire-etl/internal/storage"
)

// phase tracks pass/fail and informational notes for one probe phase.
type phase struct {
	name   string
	notes  []string
	errors []string
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// lagList collects repeated -lag flags.
type lagList []int

func (l *lagList) String() string { return fmt.Sprint(*l) }

func (l *lagList) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("lag must be a non-negative integer: %q", v)
	}
	*l = append(*l, n)
	return nil
}

func main() {
	var lags lagList
	flag.Var(&lags, "lag", "days before today (UTC) to probe; repeatable (default 7, 8, 9)")
	skipAPI := flag.Bool("skip-api", false, "only check the store")
	timeout := flag.Duration("timeout", time.Minute, "overall probe deadline")
	flag.Parse()

	if len(lags) == 0 {
		lags = lagList{7, 8, 9}
	}
	os.Exit(run(lags, *skipAPI, *timeout))
}

func run(lags []int, skipAPI bool, timeout time.Duration) int {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Only problems are worth logging here; the report goes to stdout.
	logger := sharedobs.NewLogger("warn", "text")
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	phases := []*phase{probeStore(ctx, store)}
	if !skipAPI {
		client := firms.NewClient(firms.ClientConfig{
			APIKey:  cfg.FIRMSAPIKey,
			BaseURL: cfg.FIRMSBaseURL,
			Timeout: cfg.FetchTimeout,
		}, observability.NewMetricsForTesting(), logger)
		dates := probeDates(clockwork.NewRealClock().Now(), lags)
		phases = append(phases, probeAPI(ctx, client, cfg.Country, cfg.Sources[0], dates))
	}

	if !report(os.Stdout, phases) {
		return 1
	}
	return 0
}

// statsReader is the slice of the store contract the probe needs.
type statsReader interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (domain.StoreStats, error)
}

func probeStore(ctx context.Context, store statsReader) *phase {
	p := &phase{name: "Store"}
	if err := store.Ping(ctx); err != nil {
		p.errorf("ping: %v", err)
		return p
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		p.errorf("stats: %v", err)
		return p
	}
	p.notef("rows: %d", stats.Count)
	if stats.Latest.IsZero() {
		p.notef("latest observation: none")
	} else {
		p.notef("latest observation: %s", stats.Latest.Format(domain.TimestampLayout))
	}
	return p
}

func probeDates(now time.Time, lags []int) []string {
	dates := make([]string, 0, len(lags))
	for _, lag := range lags {
		for _, d := range domain.QueryDates(now, lag, lag) {
			dates = append(dates, domain.FormatDate(d))
		}
	}
	return dates
}

// probeAPI stops at the first date that returns rows. Dates that come back
// empty are not failures since FIRMS publishes with a lag; a phase fails only
// when every date hits an upstream error.
func probeAPI(ctx context.Context, fetcher pipeline.Fetcher, country string, source domain.Source, dates []string) *phase {
	p := &phase{name: fmt.Sprintf("FIRMS API (%s, %s)", country, source.Label())}
	failures := 0
	for _, date := range dates {
		rows, err := fetcher.Fetch(ctx, country, date, source)
		switch {
		case err != nil:
			failures++
			p.notef("%s: %v", date, err)
		case len(rows) == 0:
			p.notef("%s: no detections", date)
		default:
			p.notef("%s: %d detections", date, len(rows))
			return p
		}
	}
	if len(dates) > 0 && failures == len(dates) {
		p.errorf("every probed date failed")
	}
	return p
}

func report(w io.Writer, phases []*phase) bool {
	fmt.Fprintln(w, "=== FIRMS Fire Monitor Probe ===")
	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
		for _, n := range p.notes {
			fmt.Fprintf(w, "      %s\n", n)
		}
		for _, e := range p.errors {
			fmt.Fprintf(w, "      error: %s\n", e)
		}
	}
	fmt.Fprintln(w)
	if allPassed {
		fmt.Fprintln(w, "Probe passed.")
	} else {
		fmt.Fprintln(w, "Probe FAILED.")
	}
	return allPassed
}
