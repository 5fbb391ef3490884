package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyObservation is returned for a body that decodes to JSON null.
	ErrEmptyObservation = errors.New("empty observation")
	// ErrMalformedObservation is returned when a nested section the record
	// is read from is present but unusable, e.g. "main": null or "weather": [].
	ErrMalformedObservation = errors.New("malformed observation")
)

// StagingRecord is one row of weather_staging: a single city's observation
// for a snapshot. Every measurement is optional; nil is staged as NULL.
type StagingRecord struct {
	SnapshotID         SnapshotID
	CityName           *string
	CountryCode        *string
	ObservedAt         *time.Time
	TemperatureC       *float64
	FeelsLikeC         *float64
	HumidityPct        *int
	PressureHPa        *int
	WindSpeedMPS       *float64
	WeatherMain        *string
	WeatherDescription *string

	// RawJSON is the full API response, compacted, kept for audit.
	RawJSON string
}

// currentWeather mirrors the subset of the OpenWeatherMap response we stage.
type currentWeather struct {
	Name *string `json:"name"`
	Dt   *int64  `json:"dt"`
	Sys  struct {
		Country *string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *int     `json:"humidity"`
		Pressure  *int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        *string `json:"main"`
		Description *string `json:"description"`
	} `json:"weather"`
}

// ParseObservation decodes an API response body into a StagingRecord tagged
// with the given snapshot. Absent fields and absent sections stay nil.
// Malformed JSON, a field of the wrong type, a null sys/main/wind section,
// or a weather list that is null, empty or starts with null is an error.
func ParseObservation(snapshot SnapshotID, body []byte) (StagingRecord, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return StagingRecord{}, fmt.Errorf("decode observation: %w", err)
	}
	if bytes.Equal(compact.Bytes(), []byte("null")) {
		return StagingRecord{}, ErrEmptyObservation
	}

	if err := checkSections(compact.Bytes()); err != nil {
		return StagingRecord{}, err
	}

	var resp currentWeather
	if err := json.Unmarshal(compact.Bytes(), &resp); err != nil {
		return StagingRecord{}, fmt.Errorf("decode observation: %w", err)
	}

	rec := StagingRecord{
		SnapshotID:   snapshot,
		CityName:     resp.Name,
		CountryCode:  resp.Sys.Country,
		ObservedAt:   epochToUTC(resp.Dt),
		TemperatureC: resp.Main.Temp,
		FeelsLikeC:   resp.Main.FeelsLike,
		HumidityPct:  resp.Main.Humidity,
		PressureHPa:  resp.Main.Pressure,
		WindSpeedMPS: resp.Wind.Speed,
		RawJSON:      compact.String(),
	}
	if len(resp.Weather) > 0 {
		rec.WeatherMain = resp.Weather[0].Main
		rec.WeatherDescription = resp.Weather[0].Description
	}
	return rec, nil
}

// checkSections rejects bodies whose nested sections are present but cannot
// be read from. Absent sections are fine.
func checkSections(body []byte) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(body, &sections); err != nil {
		return fmt.Errorf("decode observation: %w", err)
	}
	for _, key := range []string{"sys", "main", "wind"} {
		if raw, ok := sections[key]; ok && isNull(raw) {
			return fmt.Errorf("%w: %q is null", ErrMalformedObservation, key)
		}
	}

	raw, ok := sections["weather"]
	if !ok {
		return nil
	}
	var weather []json.RawMessage
	if err := json.Unmarshal(raw, &weather); err != nil {
		return fmt.Errorf("decode observation: weather: %w", err)
	}
	switch {
	case weather == nil:
		return fmt.Errorf("%w: \"weather\" is null", ErrMalformedObservation)
	case len(weather) == 0:
		return fmt.Errorf("%w: \"weather\" is empty", ErrMalformedObservation)
	case isNull(weather[0]):
		return fmt.Errorf("%w: \"weather\" entry is null", ErrMalformedObservation)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(raw, []byte("null"))
}

// epochToUTC converts Unix seconds to a UTC time. Nil or zero means absent.
func epochToUTC(dt *int64) *time.Time {
	if dt == nil || *dt == 0 {
		return nil
	}
	t := time.Unix(*dt, 0).UTC()
	return &t
}
