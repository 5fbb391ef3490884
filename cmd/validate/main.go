// Command validate checks OpenWeatherMap response fixtures and a quality-check
// script without touching a database. Each fixture is parsed exactly as the
// extractor would stage it, then previewed against the same thresholds the
// default quality-check script applies. The script is rendered for a fixed
// snapshot and split into statements.
//
// Usage:
//
//	go run ./cmd/validate -fixtures testdata/fixtures [-script quality_checks.sql]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/sqlscript"
)

// fixedClock makes the rendered snapshot prefix reproducible.
var fixedClock = time.Date(2025, time.May, 7, 18, 57, 37, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type fixture struct {
	name   string
	record domain.StagingRecord
}

func main() {
	fixturesDir := flag.String("fixtures", "", "directory of OpenWeatherMap current-weather JSON responses")
	scriptPath := flag.String("script", "", "quality-check SQL template (default: embedded script)")
	flag.Parse()

	if *fixturesDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *fixturesDir, *scriptPath); code != 0 {
		os.Exit(code)
	}
}

func run(w io.Writer, fixturesDir, scriptPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(fixedClock))
	defer domain.SetClock(nil)
	snapshot := domain.NewSnapshotID()

	fmt.Fprintln(w, "=== Weather Snapshot Validation ===")
	fmt.Fprintf(w, "snapshot %s\n\n", snapshot)

	parsing, fixtures := validateFixtures(fixturesDir, snapshot)
	phases := []*phase{
		parsing,
		previewQualityChecks(fixtures),
		validateScript(sqlscript.NewSource(scriptPath), snapshot),
	}

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}

	for _, p := range phases {
		if len(p.errors) == 0 && len(p.notes) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
		for _, n := range p.notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func validateFixtures(dir string, snapshot domain.SnapshotID) (*phase, []fixture) {
	p := &phase{name: "Fixture parsing"}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		p.errorf("list fixtures: %v", err)
		return p, nil
	}
	if len(paths) == 0 {
		p.errorf("no *.json fixtures in %s", dir)
		return p, nil
	}
	sort.Strings(paths)

	fixtures := make([]fixture, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		body, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		rec, err := domain.ParseObservation(snapshot, body)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		if rec.SnapshotID != snapshot {
			p.errorf("%s: staged under snapshot %s, want %s", name, rec.SnapshotID, snapshot)
		}
		fixtures = append(fixtures, fixture{name: name, record: rec})
	}
	p.notef("%d of %d fixtures parsed", len(fixtures), len(paths))
	return p, fixtures
}

// previewQualityChecks flags the fixtures the default script would log in
// data_quality_log. Flagged fixtures are notes, not failures: rejecting bad
// observations is the script's job.
func previewQualityChecks(fixtures []fixture) *phase {
	p := &phase{name: "Quality-check preview"}
	clean := 0
	for _, f := range fixtures {
		checks := failedChecks(f.record)
		if len(checks) == 0 {
			clean++
			continue
		}
		p.notef("%s would be logged: %s", f.name, strings.Join(checks, ", "))
	}
	p.notef("%d of %d fixtures would reach weather_clean", clean, len(fixtures))
	return p
}

// rangeCheck is one bounded-value check from internal/sqlscript/quality_checks.sql.
// The bounds are kept in step with the script by TestRangeChecks_MatchEmbeddedScript.
type rangeCheck struct {
	name   string
	column string
	lo, hi float64
	value  func(domain.StagingRecord) *float64
}

var rangeChecks = []rangeCheck{
	{"temperature_out_of_range", "temperature_celsius", -90, 60, func(r domain.StagingRecord) *float64 { return r.TemperatureC }},
	{"temperature_out_of_range", "feels_like_celsius", -100, 70, func(r domain.StagingRecord) *float64 { return r.FeelsLikeC }},
	{"humidity_out_of_range", "humidity_percent", 0, 100, func(r domain.StagingRecord) *float64 { return intValue(r.HumidityPct) }},
	{"pressure_out_of_range", "pressure_hpa", 870, 1085, func(r domain.StagingRecord) *float64 { return intValue(r.PressureHPa) }},
}

func failedChecks(r domain.StagingRecord) []string {
	var checks []string
	if r.CityName == nil || r.CountryCode == nil || r.ObservedAt == nil || r.TemperatureC == nil {
		checks = append(checks, "missing_required_field")
	}
	for _, c := range rangeChecks {
		if len(checks) > 0 && checks[len(checks)-1] == c.name {
			continue
		}
		if outside(c.value(r), c.lo, c.hi) {
			checks = append(checks, c.name)
		}
	}
	if r.WindSpeedMPS != nil && *r.WindSpeedMPS < 0 {
		checks = append(checks, "negative_wind_speed")
	}
	return checks
}

func outside(v *float64, lo, hi float64) bool {
	return v != nil && (*v < lo || *v > hi)
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func validateScript(src sqlscript.Source, snapshot domain.SnapshotID) *phase {
	p := &phase{name: "Script rendering"}

	stmts, err := sqlscript.Prepare(src, snapshot)
	if err != nil {
		p.errorf("%s: %v", src.Name(), err)
		return p
	}
	if len(stmts) == 0 {
		p.errorf("%s: no statements", src.Name())
		return p
	}

	for i, stmt := range stmts {
		if strings.Contains(stmt, sqlscript.Placeholder) {
			p.errorf("statement %d still contains %s", i+1, sqlscript.Placeholder)
		}
		if !strings.Contains(stmt, snapshot.String()) {
			p.notef("statement %d is not scoped to the snapshot", i+1)
		}
	}
	p.notef("%s: %d statements", src.Name(), len(stmts))
	return p
}
