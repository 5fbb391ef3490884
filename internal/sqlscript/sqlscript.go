// Package sqlscript loads the quality-check SQL template, binds it to a
// snapshot and splits it into executable statements.
//
// Binding is a textual substitution of [Placeholder], not a bound query
// parameter. That is only safe because snapshot IDs are integers generated by
// the extractor; never render a template with values from user input.
//
// Statements are split on every ";". A semicolon inside a string literal,
// comment or stored routine body breaks the split, so templates must avoid
// them.
package sqlscript

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
)

// Placeholder is replaced with the decimal snapshot ID everywhere it appears.
const Placeholder = ":current_snapshot_id"

// ErrUnsafeSnapshot is returned when asked to render a non-positive snapshot.
var ErrUnsafeSnapshot = errors.New("refusing to render non-positive snapshot id")

//go:embed quality_checks.sql
var defaultScript string

// Source provides the raw template text. Load is called once per run so
// edits to a file-backed template apply without a restart.
type Source interface {
	Load() (string, error)
	Name() string
}

// NewSource returns a file-backed source for path, or the embedded default
// script when path is empty.
func NewSource(path string) Source {
	if path == "" {
		return embeddedSource{}
	}
	return fileSource{path: path}
}

type embeddedSource struct{}

func (embeddedSource) Load() (string, error) { return defaultScript, nil }
func (embeddedSource) Name() string          { return "embedded:quality_checks.sql" }

type fileSource struct {
	path string
}

func (s fileSource) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read quality checks: %w", err)
	}
	return string(data), nil
}

func (s fileSource) Name() string { return s.path }

// Render substitutes every occurrence of Placeholder with the snapshot ID.
func Render(template string, snapshot domain.SnapshotID) (string, error) {
	if snapshot <= 0 {
		return "", fmt.Errorf("%w: %d", ErrUnsafeSnapshot, snapshot)
	}
	return strings.ReplaceAll(template, Placeholder, snapshot.String()), nil
}

// Split breaks a script into statements on ";", trimming whitespace and
// discarding fragments that hold nothing but whitespace or "--" comments.
func Split(script string) []string {
	var stmts []string
	for _, fragment := range strings.Split(script, ";") {
		fragment = strings.TrimSpace(fragment)
		if isBlank(fragment) {
			continue
		}
		stmts = append(stmts, fragment)
	}
	return stmts
}

// Prepare loads the template from src, renders it for snapshot and splits it.
func Prepare(src Source, snapshot domain.SnapshotID) ([]string, error) {
	template, err := src.Load()
	if err != nil {
		return nil, err
	}
	script, err := Render(template, snapshot)
	if err != nil {
		return nil, err
	}
	return Split(script), nil
}

func isBlank(fragment string) bool {
	for _, line := range strings.Split(fragment, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
