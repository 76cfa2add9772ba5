package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
	"github.com/mr1hm/go-flood-risk/internal/throttle"
)

const upstream = "nominatim"

// Resolver turns a locality name into coordinates. found is false when the
// service has no match.
type Resolver interface {
	Resolve(ctx context.Context, locality string) (coords models.Coordinates, found bool, err error)
}

type Options struct {
	BaseURL   string
	Region    string // appended to every query, e.g. "Ciudad de México, México"
	UserAgent string
	Timeout   time.Duration
}

// Client queries the Nominatim search API.
type Client struct {
	baseURL    string
	region     string
	userAgent  string
	httpClient *http.Client
	gate       *throttle.Gate
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func NewClient(opts Options, gate *throttle.Gate, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		region:    opts.Region,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		gate:    gate,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *Client) Resolve(ctx context.Context, locality string) (models.Coordinates, bool, error) {
	query := strings.TrimSpace(locality)
	if query == "" {
		return models.Coordinates{}, false, nil
	}
	if c.region != "" {
		query = fmt.Sprintf("%s, %s", query, c.region)
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}

	if err := c.gate.Wait(ctx); err != nil {
		return models.Coordinates{}, false, fmt.Errorf("waiting for nominatim slot: %w", err)
	}

	start := time.Now()
	coords, found, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	c.metrics.UpstreamDuration.WithLabelValues(upstream).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.UpstreamRequests.WithLabelValues(upstream, "error").Inc()
	case !found:
		c.metrics.UpstreamRequests.WithLabelValues(upstream, "empty").Inc()
		c.logger.Debug("no geocoding match", "locality", locality)
	default:
		c.metrics.UpstreamRequests.WithLabelValues(upstream, "success").Inc()
	}
	return coords, found, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (models.Coordinates, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return models.Coordinates{}, false, fmt.Errorf("create request: %w", err)
	}
	// Nominatim's usage policy rejects requests without an identifying agent.
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, false, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return models.Coordinates{}, false, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return models.Coordinates{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		return models.Coordinates{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return models.Coordinates{}, false, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return models.Coordinates{}, false, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}, true, nil
}

// Nominatim returns coordinates as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
