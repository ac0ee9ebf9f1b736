package maps

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

func newTestClient(t *testing.T, status int, body string, capture func(*http.Request)) *Client {
	t.Helper()
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if capture != nil {
			capture(req)
		}
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{},
		}, nil
	})
	client, err := NewClient("test-key", WithBaseURL("http://maps.test/api"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClientDistance(t *testing.T) {
	body := `{"status":"OK","origin_addresses":["Lekki, Lagos"],"destination_addresses":["Yaba, Lagos"],
		"rows":[{"elements":[{"status":"OK","distance":{"text":"12.3 km","value":12345},"duration":{"text":"25 mins","value":1500}}]}]}`

	var captured *http.Request
	client := newTestClient(t, http.StatusOK, body, func(req *http.Request) { captured = req })

	got, err := client.Distance(context.Background(), "Lekki, Lagos", "6.5,3.37")
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if captured.URL.Path != "/api/distancematrix/json" {
		t.Fatalf("unexpected path %q", captured.URL.Path)
	}
	q := captured.URL.Query()
	if q.Get("origins") != "Lekki, Lagos" || q.Get("destinations") != "6.5,3.37" || q.Get("key") != "test-key" {
		t.Fatalf("unexpected query %v", q)
	}
	if got.DistanceKm.String() != "12.345" {
		t.Fatalf("expected 12.345 km, got %s", got.DistanceKm)
	}
	if got.DurationSeconds != 1500 || got.DurationText != "25 mins" || got.DistanceText != "12.3 km" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.OriginAddress != "Lekki, Lagos" {
		t.Fatalf("unexpected origin address %q", got.OriginAddress)
	}
}

func TestClientDistanceUnresolvableLocationIsValidation(t *testing.T) {
	body := `{"status":"OK","rows":[{"elements":[{"status":"NOT_FOUND"}]}]}`
	client := newTestClient(t, http.StatusOK, body, nil)

	_, err := client.Distance(context.Background(), "nowhere", "somewhere")
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientDistanceProviderFailureIsUpstream(t *testing.T) {
	client := newTestClient(t, http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"bad key"}`, nil)
	_, err := client.Distance(context.Background(), "a", "b")
	if !pkgerrors.Is(err, pkgerrors.CodeUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("expected provider message to pass through, got %v", err)
	}

	client = newTestClient(t, http.StatusInternalServerError, "oops", nil)
	if _, err := client.Distance(context.Background(), "a", "b"); !pkgerrors.Is(err, pkgerrors.CodeUpstream) {
		t.Fatalf("expected upstream error on http failure, got %v", err)
	}
}

func TestClientDistanceRequiresBothLocations(t *testing.T) {
	client := newTestClient(t, http.StatusOK, `{}`, func(*http.Request) {
		t.Fatal("no request expected")
	})
	if _, err := client.Distance(context.Background(), " ", "b"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error without api key")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
