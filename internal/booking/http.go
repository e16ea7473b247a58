package booking

import (
	"bytes"
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

	"golang.org/x/time/rate"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// HTTPFlightClient talks to a JSON flight API:
//
//	GET  {base}/flights?departure=LHR&destination=CDG&...  -> {"flights": [...]}
//	POST {base}/bookings {"option_id": "AA123"}          -> {"reference": "...", "status": "..."}
type HTTPFlightClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFlightClient creates a rate-limited HTTP flight provider.
func NewHTTPFlightClient(baseURL, apiKey string, timeout time.Duration, perSec float64, burst int) *HTTPFlightClient {
	return &HTTPFlightClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

type flightSearchResponse struct {
	Flights []struct {
		FlightID string  `json:"flight_id"`
		Airline  string  `json:"airline"`
		Time     string  `json:"time"`
		Price    float64 `json:"price"`
		Currency string  `json:"currency"`
	} `json:"flights"`
}

type bookingResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func (c *HTTPFlightClient) Search(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	q := SearchParams(req)
	var body flightSearchResponse
	if err := c.do(ctx, http.MethodGet, "/flights?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}
	out := make([]models.BookingOption, 0, len(body.Flights))
	for _, f := range body.Flights {
		currency := f.Currency
		if currency == "" {
			currency = "USD"
		}
		out = append(out, models.BookingOption{ID: f.FlightID, Provider: f.Airline, Time: f.Time, Price: f.Price, Currency: currency})
	}
	slog.Debug("HTTPFlightClient.Search: results", "count", len(out))
	return out, nil
}

func (c *HTTPFlightClient) Confirm(ctx context.Context, option models.BookingOption) (models.Confirmation, error) {
	payload, err := json.Marshal(map[string]string{"option_id": option.ID})
	if err != nil {
		return models.Confirmation{}, err
	}
	var body bookingResponse
	if err := c.do(ctx, http.MethodPost, "/bookings", payload, &body); err != nil {
		return models.Confirmation{}, err
	}
	if body.Reference == "" {
		return models.Confirmation{}, fmt.Errorf("booking response carried no reference")
	}
	status := body.Status
	if status == "" {
		status = "confirmed"
	}
	return models.Confirmation{Reference: body.Reference, OptionID: option.ID, Status: status, ConfirmedAt: time.Now()}, nil
}

func (c *HTTPFlightClient) do(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	slog.Debug("HTTPFlightClient.do", "method", method, "path", path)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		slog.Error("HTTPFlightClient.do: request failed", "error", err, "method", method, "path", path)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("HTTPFlightClient.do: unexpected status", "status", resp.StatusCode, "body", string(snippet))
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SearchParams flattens a request into query parameters. Encode sorts keys, so the
// encoded form doubles as a stable cache key.
func SearchParams(req models.BookingRequest) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("flow", string(req.Flow))
	set("trip_type", req.TripType)
	if req.Departure != nil {
		set("departure", req.Departure.Code)
	}
	if req.Destination != nil {
		set("destination", req.Destination.Code)
	}
	for _, d := range req.Destinations {
		q.Add("destinations", d.Code)
	}
	set("departure_date", req.DepartureDate)
	set("return_date", req.ReturnDate)
	if req.Passengers > 0 {
		set("passengers", strconv.Itoa(req.Passengers))
	}
	set("travel_class", req.TravelClass)
	set("preferred_airline", req.PreferredAirline)
	set("frequent_flyer_number", req.FrequentFlyerNumber)
	set("seat_preference", req.SeatPreference)
	set("pickup_location", req.PickupLocation)
	set("pickup_date", req.PickupDate)
	set("dropoff_date", req.DropoffDate)
	set("car_category", req.CarCategory)
	return q
}
