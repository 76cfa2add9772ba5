// Package openweather fetches live three-hourly forecasts from the
// OpenWeatherMap 5 day / 3 hour forecast API.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
	"github.com/mr1hm/go-flood-risk/internal/throttle"
)

const upstream = "openweathermap"

var ErrEmptyForecast = errors.New("forecast contained no observations")

type forecastResponse struct {
	List []forecastItem `json:"list"`
}

type forecastItem struct {
	Dt   int64 `json:"dt"` // unix seconds
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Pop  float64            `json:"pop"` // 0..1
	Rain map[string]float64 `json:"rain"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	gate       *throttle.Gate
	metrics    *observability.Metrics
}

func NewClient(baseURL, apiKey string, timeout time.Duration, gate *throttle.Gate, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		gate:    gate,
		metrics: metrics,
	}
}

// Fetch returns the forecast for the coordinates in the order the API lists it.
// Observations are tagged live; the locality is left for the caller to set.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for forecast slot: %w", err)
	}

	start := time.Now()
	obs, err := c.fetch(ctx, lat, lon)
	c.metrics.UpstreamDuration.WithLabelValues(upstream).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrEmptyForecast):
		c.metrics.UpstreamRequests.WithLabelValues(upstream, "empty").Inc()
	case err != nil:
		c.metrics.UpstreamRequests.WithLabelValues(upstream, "error").Inc()
	default:
		c.metrics.UpstreamRequests.WithLabelValues(upstream, "success").Inc()
	}
	return obs, err
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', 6, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
		"lang":  {"es"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/forecast?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("unexpected status code: %d - body: %s", resp.StatusCode, body)
	}

	var data forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if len(data.List) == 0 {
		return nil, ErrEmptyForecast
	}

	observations := make([]models.WeatherObservation, 0, len(data.List))
	for _, item := range data.List {
		o := models.WeatherObservation{
			Timestamp:       time.Unix(item.Dt, 0).UTC(),
			RainProbability: item.Pop * 100,
			TemperatureC:    item.Main.Temp,
			HumidityPct:     item.Main.Humidity,
			PressureHPa:     item.Main.Pressure,
			Provenance:      models.ProvenanceLive,
		}
		if mm, ok := item.Rain["3h"]; ok {
			o.RainfallMM = &mm
		}
		observations = append(observations, o)
	}

	return observations, nil
}
