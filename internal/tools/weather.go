package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"hivemind/internal/logging"
)

// =============================================================================
// WEATHER (Open-Meteo, no API key required)
// =============================================================================

const (
	geocodeURL     = "https://geocoding-api.open-meteo.com/v1/search"
	forecastURL    = "https://api.open-meteo.com/v1/forecast"
	weatherTimeout = 10 * time.Second

	// DefaultLocation is used when a request never names a place.
	DefaultLocation = "Cambridge, MA"

	defaultLatitude  = 42.3736
	defaultLongitude = -71.1097
)

// WeatherReport is the current conditions at one location.
type WeatherReport struct {
	Location      string
	Condition     string  // human-readable weather-code description
	TemperatureC  float64 // air temperature, Celsius
	FeelsLikeC    float64
	Humidity      int // percent
	WindKMH       float64
	Precipitation float64 // millimeters, 0 when dry
}

// Forecaster is the weather surface specialists consume.
type Forecaster interface {
	Current(ctx context.Context, location string) (*WeatherReport, error)
}

// OpenMeteo fetches current conditions from the Open-Meteo API, geocoding
// location names through the same provider.
type OpenMeteo struct {
	// GeocodeURL and ForecastURL are overridable for tests.
	GeocodeURL  string
	ForecastURL string

	client *http.Client
}

var _ Forecaster = (*OpenMeteo)(nil)

// NewOpenMeteo creates a weather client. A nil httpClient uses
// http.DefaultClient.
func NewOpenMeteo(httpClient *http.Client) *OpenMeteo {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenMeteo{GeocodeURL: geocodeURL, ForecastURL: forecastURL, client: httpClient}
}

// weatherDescriptions maps WMO weather codes to display strings.
var weatherDescriptions = map[int]string{
	0:  "☀️ Clear sky",
	1:  "🌤️ Mainly clear",
	2:  "⛅ Partly cloudy",
	3:  "☁️ Overcast",
	45: "🌫️ Foggy",
	48: "🌫️ Rime fog",
	51: "🌦️ Light drizzle",
	61: "🌧️ Slight rain",
	63: "🌧️ Moderate rain",
	65: "🌧️ Heavy rain",
	71: "🌨️ Slight snow",
	73: "🌨️ Moderate snow",
	75: "❄️ Heavy snow",
	95: "⛈️ Thunderstorm",
	96: "⛈️ Thunderstorm with hail",
}

// Current geocodes location and returns its present conditions. An empty
// location falls back to DefaultLocation.
func (o *OpenMeteo) Current(ctx context.Context, location string) (*WeatherReport, error) {
	ctx, cancel := context.WithTimeout(ctx, weatherTimeout)
	defer cancel()

	lat, lon, name := defaultLatitude, defaultLongitude, DefaultLocation
	if strings.TrimSpace(location) != "" {
		var err error
		lat, lon, name, err = o.geocode(ctx, location)
		if err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m")
	params.Set("timezone", "auto")

	var payload struct {
		Current struct {
			Temperature   float64 `json:"temperature_2m"`
			Humidity      int     `json:"relative_humidity_2m"`
			FeelsLike     float64 `json:"apparent_temperature"`
			Precipitation float64 `json:"precipitation"`
			WeatherCode   int     `json:"weather_code"`
			WindSpeed     float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	if err := o.getJSON(ctx, o.ForecastURL, params, &payload); err != nil {
		return nil, fmt.Errorf("fetching weather data: %w", err)
	}

	condition, ok := weatherDescriptions[payload.Current.WeatherCode]
	if !ok {
		condition = "Unknown"
	}
	report := &WeatherReport{
		Location:      name,
		Condition:     condition,
		TemperatureC:  payload.Current.Temperature,
		FeelsLikeC:    payload.Current.FeelsLike,
		Humidity:      payload.Current.Humidity,
		WindKMH:       payload.Current.WindSpeed,
		Precipitation: payload.Current.Precipitation,
	}
	logging.Tools("Weather lookup for %q: %.1f°C, %s", name, report.TemperatureC, condition)
	return report, nil
}

// geocode resolves a place name to coordinates and a display name.
func (o *OpenMeteo) geocode(ctx context.Context, location string) (lat, lon float64, name string, err error) {
	params := url.Values{}
	params.Set("name", location)
	params.Set("count", "1")

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Name      string  `json:"name"`
			Country   string  `json:"country"`
		} `json:"results"`
	}
	if err := o.getJSON(ctx, o.GeocodeURL, params, &payload); err != nil {
		return 0, 0, "", fmt.Errorf("geocoding %q: %w", location, err)
	}
	if len(payload.Results) == 0 {
		return 0, 0, "", fmt.Errorf("could not find location: %s", location)
	}
	r := payload.Results[0]
	return r.Latitude, r.Longitude, fmt.Sprintf("%s, %s", r.Name, r.Country), nil
}

func (o *OpenMeteo) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Render formats the report the way specialists deliver it to users.
func (r *WeatherReport) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current weather in %s:\n\n", r.Location)
	fmt.Fprintf(&sb, "%s\n", r.Condition)
	fmt.Fprintf(&sb, "🌡️ Temperature: %.1f°C / %.1f°F\n", r.TemperatureC, cToF(r.TemperatureC))
	fmt.Fprintf(&sb, "🤔 Feels like: %.1f°C / %.1f°F\n", r.FeelsLikeC, cToF(r.FeelsLikeC))
	fmt.Fprintf(&sb, "💧 Humidity: %d%%\n", r.Humidity)
	fmt.Fprintf(&sb, "💨 Wind: %.1f km/h / %.1f mph", r.WindKMH, r.WindKMH*0.621371)
	if r.Precipitation > 0 {
		fmt.Fprintf(&sb, "\n🌧️ Precipitation: %.1fmm", r.Precipitation)
	}
	return sb.String()
}

func cToF(c float64) float64 {
	return c*9/5 + 32
}

// locationRe pulls a place name out of phrasing like "weather in Boston" or
// "forecast for San Francisco?".
var locationRe = regexp.MustCompile(`(?i)(?:weather|forecast|temperature)\s+(?:in|for|at)\s+([a-zA-Z][a-zA-Z .,'-]*)`)

// trailingWords are filler tokens that follow a place name in chat phrasing.
var trailingWords = map[string]bool{
	"today":    true,
	"tomorrow": true,
	"tonight":  true,
	"now":      true,
	"please":   true,
	"right":    true,
	"this":     true,
	"week":     true,
}

// ExtractLocation finds the place a weather request is about, or "" when the
// request never names one.
func ExtractLocation(task string) string {
	m := locationRe.FindStringSubmatch(task)
	if m == nil {
		return ""
	}
	loc := strings.TrimRight(strings.TrimSpace(m[1]), ".,?! ")
	words := strings.Fields(loc)
	for len(words) > 0 && trailingWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.TrimRight(strings.Join(words, " "), ",")
}
