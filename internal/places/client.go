// Package places queries the Google Places web service for plumbing
// businesses and maps provider statuses to typed errors.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/discovery"
	collyfetcher "github.com/vindloodgieter/discovery/internal/fetcher/colly"
	"github.com/vindloodgieter/discovery/internal/metrics"
)

// DefaultBaseURL is the Places web service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

const (
	endpointTextSearch = "textsearch"
	endpointDetails    = "details"

	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
	closedPermanently = "CLOSED_PERMANENTLY"
)

// Fetcher performs one HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Limiter spaces outbound calls.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the client.
type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Region   string
	// MaxPages bounds next_page_token pagination. Values below 1 mean 1.
	MaxPages int
	// PageTokenDelay is waited before requesting a token page; the provider
	// rejects tokens that are used too soon.
	PageTokenDelay time.Duration
}

// Details holds the contact fields returned by a Place Details call.
type Details struct {
	Phone   string
	Website string
}

// Client is a rate-limited Places client.
type Client struct {
	cfg     Config
	fetcher Fetcher
	limiter Limiter
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, fetcher Fetcher, limiter Limiter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, fetcher: fetcher, limiter: limiter, logger: logger}
}

// Query formats the provider query text for a work item.
func Query(item discovery.WorkItem) string {
	return fmt.Sprintf("%s %s %s Nederland", item.SearchTerm, item.City, item.Province)
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	Types            []string `json:"types"`
	BusinessStatus   string   `json:"business_status"`
	Geometry         *struct {
		Location *location `json:"location"`
	} `json:"geometry"`
}

type textSearchResponse struct {
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message"`
	NextPageToken string        `json:"next_page_token"`
	Results       []placeResult `json:"results"`
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		FormattedPhoneNumber     string `json:"formatted_phone_number"`
		InternationalPhoneNumber string `json:"international_phone_number"`
		Website                  string `json:"website"`
	} `json:"result"`
}

// Search runs a text search and follows pagination up to MaxPages.
// ZERO_RESULTS yields an empty slice and a nil error. Permanently closed
// places are dropped.
func (c *Client) Search(ctx context.Context, query string) ([]discovery.RawPlace, error) {
	params := url.Values{}
	params.Set("query", query)
	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}
	if c.cfg.Region != "" {
		params.Set("region", c.cfg.Region)
	}

	places := make([]discovery.RawPlace, 0)
	for page := 1; page <= c.cfg.MaxPages; page++ {
		var resp textSearchResponse
		if err := c.get(ctx, endpointTextSearch, params, &resp); err != nil {
			return nil, err
		}
		if resp.Status == statusZeroResults {
			c.logger.Debug("places search returned no results", zap.String("query", query), zap.Int("page", page))
			break
		}
		for _, r := range resp.Results {
			if r.BusinessStatus == closedPermanently || r.PlaceID == "" {
				continue
			}
			places = append(places, toRawPlace(r))
		}
		c.logger.Debug("places search page fetched",
			zap.String("query", query),
			zap.Int("page", page),
			zap.Int("results", len(resp.Results)),
		)
		if resp.NextPageToken == "" {
			break
		}
		if page == c.cfg.MaxPages {
			break
		}
		if err := sleep(ctx, c.cfg.PageTokenDelay); err != nil {
			return nil, fmt.Errorf("places page token wait: %w", err)
		}
		params = url.Values{}
		params.Set("pagetoken", resp.NextPageToken)
	}
	return places, nil
}

// Details fetches contact fields for one place.
func (c *Client) Details(ctx context.Context, externalID string) (Details, error) {
	params := url.Values{}
	params.Set("place_id", externalID)
	params.Set("fields", "formatted_phone_number,international_phone_number,website")
	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}
	var resp detailsResponse
	if err := c.get(ctx, endpointDetails, params, &resp); err != nil {
		return Details{}, err
	}
	phone := resp.Result.FormattedPhoneNumber
	if phone == "" {
		phone = resp.Result.InternationalPhoneNumber
	}
	return Details{Phone: phone, Website: resp.Result.Website}, nil
}

// statusEnvelope is decoded first so every endpoint shares the status mapping.
type statusEnvelope struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.cfg.APIKey)
	target := c.cfg.BaseURL + "/" + endpoint + "/json?" + params.Encode()

	if err := c.limiter.Wait(ctx, target); err != nil {
		return err
	}
	resp, err := c.fetcher.Fetch(ctx, collyfetcher.Request{
		URL:     target,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("places %s: %w", endpoint, ctx.Err())
		}
		code := collyfetcher.StatusCode(err)
		metrics.ObserveSearch(endpoint, outcomeLabel(code))
		statusErr := &StatusError{Endpoint: endpoint, HTTPStatus: code, Err: ErrUnavailable}
		if code != 0 {
			statusErr.Err = sentinelForHTTP(code)
		} else {
			statusErr.Message = err.Error()
		}
		return statusErr
	}

	var env statusEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		metrics.ObserveSearch(endpoint, "malformed")
		return &StatusError{Endpoint: endpoint, Message: err.Error(), Err: ErrMalformedResponse}
	}
	metrics.ObserveSearch(endpoint, strings.ToLower(env.Status))
	if env.Status != statusOK && env.Status != statusZeroResults {
		return &StatusError{
			Endpoint: endpoint,
			Status:   env.Status,
			Message:  env.ErrorMessage,
			Err:      sentinelForStatus(env.Status),
		}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &StatusError{Endpoint: endpoint, Status: env.Status, Message: err.Error(), Err: ErrMalformedResponse}
	}
	return nil
}

func toRawPlace(r placeResult) discovery.RawPlace {
	raw := discovery.RawPlace{
		ExternalID:       r.PlaceID,
		Name:             strings.TrimSpace(r.Name),
		FormattedAddress: strings.TrimSpace(r.FormattedAddress),
		Rating:           r.Rating,
		ReviewCount:      r.UserRatingsTotal,
		CategoryTags:     append([]string{}, r.Types...),
		BusinessStatus:   r.BusinessStatus,
	}
	if r.Geometry != nil && r.Geometry.Location != nil {
		raw.Coordinates = &discovery.Coordinates{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	}
	return raw
}

func outcomeLabel(code int) string {
	if code == 0 {
		return "transport_error"
	}
	return fmt.Sprintf("http_%d", code)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ discovery.Searcher = (*Client)(nil)

// IsCanceled reports whether err stems from context cancellation rather than
// the provider.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
