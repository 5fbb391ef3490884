// Package domain models weather observations pulled from the OpenWeatherMap
// "current weather" API and the snapshot scheme that ties one extraction run
// to the rows it stages.
//
// # Data Source
//
// Observations come from https://api.openweathermap.org/data/2.5/weather,
// queried by city name and ISO 3166 country code ("London,UK") with
// units=metric. A response body looks like:
//
//	{
//	  "name": "London",
//	  "dt": 1746644257,
//	  "sys":  {"country": "GB"},
//	  "main": {"temp": 14.2, "feels_like": 13.6, "humidity": 71, "pressure": 1015},
//	  "wind": {"speed": 4.1},
//	  "weather": [{"main": "Clouds", "description": "broken clouds"}]
//	}
//
// # Field Conventions
//
// Units (metric):
//
//	temp, feels_like  degrees Celsius
//	humidity          percent, integer
//	pressure          hPa at sea level, integer
//	wind.speed        metres per second
//
// Observation time:
//
//	"dt" is a Unix epoch in seconds and is always interpreted as UTC.
//	A missing or zero "dt" leaves the observation time absent.
//
// Weather condition:
//
//	"weather" is a list; only the first entry is used. Its "main" is the
//	coarse category (Clear, Clouds, Rain, ...) and "description" the
//	human-readable text. An empty list leaves both absent.
//
// Missing values:
//
//	Any field missing from the response is staged as NULL rather than
//	rejected; rejection is the job of the quality-check script. A value of
//	the wrong JSON type (e.g. "main": "n/a") is a shape error and the city is
//	skipped for the run.
//
// # Snapshot IDs
//
// A snapshot ID is the decimal Unix timestamp (seconds) of the run start
// followed by four random digits in 1000-9999, read back as an integer, e.g.
// 1746644257 + 4821 -> 17466442574821. Runs started in the same second
// collide with probability 1/9000. See [NewSnapshotID].
package domain
