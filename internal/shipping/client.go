package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patchline/api/internal/domain"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultFallbackCents = 999
	defaultWeightOunces  = 8
	fallbackDeliveryDays = 5

	maxRateResponseBody = 256 * 1024
)

// ErrInvalidInput indicates the caller supplied an unusable address or item list.
var ErrInvalidInput = errors.New("shipping: invalid input")

// RateItem describes one shippable line sent to the rate endpoint.
type RateItem struct {
	Name       string
	Quantity   int
	PriceCents int64
	WeightOz   float64
}

// RateQuote is the resolved set of carrier quotes. Recommended is always
// populated: the backend-marked rate, else the first rate, else the fallback.
type RateQuote struct {
	Rates       []domain.ShippingRate
	Recommended domain.ShippingRate
	Warning     string
	Estimated   bool
}

// ClientDeps configures the shipping rate client.
type ClientDeps struct {
	Endpoint      string
	HTTPClient    *http.Client
	FallbackCents int64
	DefaultWeight float64
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Client fetches carrier rate quotes from the configured rate endpoint and
// degrades to a flat estimated rate when the endpoint is unreachable.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	fallbackCents int64
	defaultWeight float64
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewClient constructs a shipping rate Client.
func NewClient(deps ClientDeps) (*Client, error) {
	endpoint := strings.TrimSpace(deps.Endpoint)
	if endpoint == "" {
		return nil, errors.New("shipping: rate endpoint is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	fallback := deps.FallbackCents
	if fallback <= 0 {
		fallback = defaultFallbackCents
	}
	weight := deps.DefaultWeight
	if weight <= 0 {
		weight = defaultWeightOunces
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Client{
		endpoint:      endpoint,
		httpClient:    httpClient,
		fallbackCents: fallback,
		defaultWeight: weight,
		logger:        logger,
	}, nil
}

type rateRequestItem struct {
	Name     string     `json:"name"`
	Quantity int        `json:"quantity"`
	Price    int64      `json:"price"`
	Weight   rateWeight `json:"weight"`
}

type rateWeight struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

type rateRequest struct {
	Address domain.Address    `json:"address"`
	Items   []rateRequestItem `json:"items"`
}

type rateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *struct {
		Rates           []domain.ShippingRate `json:"rates"`
		RecommendedRate *domain.ShippingRate  `json:"recommendedRate,omitempty"`
		Warning         string                `json:"warning,omitempty"`
	} `json:"data,omitempty"`
}

// CalculateRates requests carrier quotes for the destination and items.
// Transport and non-2xx failures never surface as errors: the result degrades
// to a single estimated Standard rate with a warning. Only invalid input is
// reported as an error.
func (c *Client) CalculateRates(ctx context.Context, address domain.Address, items []RateItem) (RateQuote, error) {
	if err := validateAddress(address); err != nil {
		return RateQuote{}, err
	}
	if len(items) == 0 {
		return RateQuote{}, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}

	payload := rateRequest{Address: address, Items: make([]rateRequestItem, 0, len(items))}
	for _, item := range items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		weight := item.WeightOz
		if weight <= 0 {
			weight = c.defaultWeight
		}
		payload.Items = append(payload.Items, rateRequestItem{
			Name:     item.Name,
			Quantity: quantity,
			Price:    item.PriceCents,
			Weight:   rateWeight{Value: weight, Units: "ounces"},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return RateQuote{}, fmt.Errorf("shipping: encode rate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return RateQuote{}, fmt.Errorf("shipping: build rate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger(ctx, "shipping.rates.transport_failed", map[string]any{"error": err.Error()})
		return c.fallbackQuote(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger(ctx, "shipping.rates.bad_status", map[string]any{"status": resp.StatusCode})
		return c.fallbackQuote(), nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRateResponseBody))
	if err != nil {
		c.logger(ctx, "shipping.rates.read_failed", map[string]any{"error": err.Error()})
		return c.fallbackQuote(), nil
	}

	var decoded rateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || !decoded.Success || decoded.Data == nil || len(decoded.Data.Rates) == 0 {
		c.logger(ctx, "shipping.rates.malformed_response", map[string]any{"success": decoded.Success})
		return c.fallbackQuote(), nil
	}

	quote := RateQuote{
		Rates:   decoded.Data.Rates,
		Warning: decoded.Data.Warning,
	}
	switch {
	case decoded.Data.RecommendedRate != nil:
		quote.Recommended = *decoded.Data.RecommendedRate
	default:
		quote.Recommended = pickRecommended(decoded.Data.Rates)
	}
	return quote, nil
}

// fallbackQuote synthesizes the single flat-rate Standard quote used whenever
// live rates are unavailable.
func (c *Client) fallbackQuote() RateQuote {
	rate := domain.ShippingRate{
		ServiceName:           "Standard Shipping",
		ServiceCode:           "usps_standard",
		Carrier:               "USPS",
		ShipmentCostCents:     c.fallbackCents,
		OtherCostCents:        0,
		TotalCostCents:        c.fallbackCents,
		EstimatedDeliveryDays: fallbackDeliveryDays,
		Recommended:           true,
	}
	return RateQuote{
		Rates:       []domain.ShippingRate{rate},
		Recommended: rate,
		Warning:     "Live carrier rates are unavailable; shipping cost is estimated.",
		Estimated:   true,
	}
}

func pickRecommended(rates []domain.ShippingRate) domain.ShippingRate {
	for _, rate := range rates {
		if rate.Recommended {
			return rate
		}
	}
	return rates[0]
}

func validateAddress(address domain.Address) error {
	var missing []string
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	check("street1", address.Street1)
	check("city", address.City)
	check("state", address.State)
	check("postalCode", address.PostalCode)
	check("country", address.Country)
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing address fields %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}
