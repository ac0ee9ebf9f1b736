package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://maps.googleapis.com/maps/api"
	distanceMatrixPath          = "distancematrix/json"
	requestBodyReadLimit  int64 = 1024
	statusOK                    = "OK"
	elementStatusNotFound       = "NOT_FOUND"
	elementStatusNoResult       = "ZERO_RESULTS"
)

var (
	errAPIKeyRequired = errors.New("google maps api key is required")
	metersPerKm       = decimal.NewFromInt(1000)
)

// Client wraps the Google Distance Matrix API used for delivery distances.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Maps API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Google Maps client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// Distance is the road distance and travel time between two locations.
type Distance struct {
	DistanceKm         decimal.Decimal `json:"distanceKm"`
	DistanceText       string          `json:"distanceText"`
	DurationSeconds    int64           `json:"durationSeconds"`
	DurationText       string          `json:"durationText"`
	OriginAddress      string          `json:"originAddress,omitempty"`
	DestinationAddress string          `json:"destinationAddress,omitempty"`
}

type distanceMatrixResponse struct {
	Status               string   `json:"status"`
	ErrorMessage         string   `json:"error_message"`
	OriginAddresses      []string `json:"origin_addresses"`
	DestinationAddresses []string `json:"destination_addresses"`
	Rows                 []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Text  string `json:"text"`
				Value int64  `json:"value"`
			} `json:"distance"`
			Duration struct {
				Text  string `json:"text"`
				Value int64  `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// Distance resolves the driving distance between origin and destination, each
// either a free-form address or a "lat,lng" pair. Unresolvable locations are
// validation errors; provider failures are upstream errors.
func (c *Client) Distance(ctx context.Context, origin, destination string) (*Distance, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin and destination are required")
	}

	query := url.Values{}
	query.Set("origins", origin)
	query.Set("destinations", destination)
	query.Set("units", "metric")
	query.Set("key", c.apiKey)

	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.baseURL, "/"), distanceMatrixPath, query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build distance matrix request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "distance provider unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "distance matrix request failed")
	}

	var apiResp distanceMatrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode distance matrix response")
	}

	if apiResp.Status != statusOK {
		msg := apiResp.ErrorMessage
		if msg == "" {
			msg = apiResp.Status
		}
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "distance provider error: "+msg)
	}
	if len(apiResp.Rows) == 0 || len(apiResp.Rows[0].Elements) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unable to calculate distance between the supplied locations")
	}

	element := apiResp.Rows[0].Elements[0]
	switch element.Status {
	case statusOK:
	case elementStatusNotFound, elementStatusNoResult:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unable to calculate distance between the supplied locations").
			WithDetails(map[string]any{"status": element.Status})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "distance provider error: "+element.Status)
	}

	result := &Distance{
		DistanceKm:      decimal.NewFromInt(element.Distance.Value).Div(metersPerKm),
		DistanceText:    element.Distance.Text,
		DurationSeconds: element.Duration.Value,
		DurationText:    element.Duration.Text,
	}
	if len(apiResp.OriginAddresses) > 0 {
		result.OriginAddress = apiResp.OriginAddresses[0]
	}
	if len(apiResp.DestinationAddresses) > 0 {
		result.DestinationAddress = apiResp.DestinationAddresses[0]
	}
	return result, nil
}
