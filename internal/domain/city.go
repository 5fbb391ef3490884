package domain

import (
	"fmt"
	"strings"
)

// City identifies one API query target by name and ISO country code.
type City struct {
	Name    string
	Country string
}

// Query renders the city in the "name,country" form the weather API expects.
func (c City) Query() string {
	if c.Country == "" {
		return c.Name
	}
	return c.Name + "," + c.Country
}

func (c City) String() string {
	return c.Query()
}

// DefaultCities is the fixed, ordered list of cities fetched on every run.
func DefaultCities() []City {
	return []City{
		{Name: "London", Country: "UK"},
		{Name: "Paris", Country: "FR"},
		{Name: "New York", Country: "US"},
		{Name: "Tokyo", Country: "JP"},
		{Name: "Sydney", Country: "AU"},
	}
}

// ParseCities parses a ";"-separated list of "name,country" pairs, e.g.
// "London,UK;New York,US". Order is preserved; empty entries are skipped.
func ParseCities(s string) ([]City, error) {
	var cities []City
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, country, _ := strings.Cut(entry, ",")
		name = strings.TrimSpace(name)
		country = strings.TrimSpace(country)
		if name == "" {
			return nil, fmt.Errorf("city entry %q has no name", entry)
		}
		cities = append(cities, City{Name: name, Country: strings.ToUpper(country)})
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("no cities in %q", s)
	}
	return cities, nil
}
