// Package google implements the nearby-search and reverse-geocoding
// collaborators on top of the Google Places and Geocoding web services.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joeblew999/plat-trip/internal/search"
	"github.com/joeblew999/plat-trip/internal/store"
)

// DefaultBaseURL is the Google Maps web service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api"

// ErrNoAPIKey is returned by every call when no API key is configured.
var ErrNoAPIKey = errors.New("google api key not set")

// categoryTypes maps an item type to the Places "type" filter.
var categoryTypes = map[store.ItemType]string{
	store.Attraction: "tourist_attraction",
	store.Restaurant: "restaurant",
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	// RequestsPerSecond limits outgoing calls; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client talks to the Google web services. It is safe for concurrent use.
type Client struct {
	key     string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

var (
	_ search.NearbySearcher  = (*Client)(nil)
	_ search.ReverseGeocoder = (*Client)(nil)
)

// New creates a client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		key:     opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		limiter: limiter,
		log:     opts.Logger.Named("google"),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.key != ""
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type placeResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Types    []string `json:"types"`
	Geometry struct {
		Location location `json:"location"`
	} `json:"geometry"`
	Rating           float64 `json:"rating,omitempty"`
	UserRatingsTotal int     `json:"user_ratings_total,omitempty"`
	PriceLevel       *int    `json:"price_level,omitempty"`
	Photos           []struct {
		Reference string `json:"photo_reference"`
	} `json:"photos,omitempty"`
}

type nearbyResponse struct {
	Results      []placeResult `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type addressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

type geocodeResult struct {
	PlaceID           string             `json:"place_id"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []addressComponent `json:"address_components"`
	Geometry          struct {
		Location location `json:"location"`
	} `json:"geometry"`
}

type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Search runs a Places Nearby Search for one category.
func (c *Client) Search(ctx context.Context, category store.ItemType, center orb.Point, radius float64, limit int) ([]store.DiscoveryItem, error) {
	if c.key == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("location", latLng(center))
	q.Set("radius", strconv.Itoa(int(math.Round(radius))))
	if t, ok := categoryTypes[category]; ok {
		q.Set("type", t)
	}

	var resp nearbyResponse
	if err := c.get(ctx, "/place/nearbysearch/json", q, &resp); err != nil {
		return nil, fmt.Errorf("nearby %s: %w", category, err)
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, fmt.Errorf("nearby %s: %w", category, err)
	}

	items := scorePlaces(resp.Results)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	c.log.Debug("nearby search",
		zap.String("category", string(category)),
		zap.Float64("radius", radius),
		zap.Int("results", len(items)))
	return items, nil
}

// Resolve reverse-geocodes center. The name is "City||Country" when both
// parts are known. A nil result means Google found nothing.
func (c *Client) Resolve(ctx context.Context, center orb.Point) (*search.Resolved, error) {
	if c.key == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("latlng", latLng(center))
	q.Set("result_type", "locality|administrative_area_level_1|country")

	var resp geocodeResponse
	if err := c.get(ctx, "/geocode/json", q, &resp); err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	r := resp.Results[0]
	name := compositeName(resp.Results)
	if name == "" {
		return nil, nil
	}
	return &search.Resolved{
		ID:   r.PlaceID,
		Name: name,
		Lat:  r.Geometry.Location.Lat,
		Lng:  r.Geometry.Location.Lng,
	}, nil
}

// get performs a rate limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	q.Set("key", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func checkStatus(status, msg string) error {
	if status == "OK" || status == "ZERO_RESULTS" {
		return nil
	}
	if msg != "" {
		return fmt.Errorf("api error: %s: %s", status, msg)
	}
	return fmt.Errorf("api error: %s", status)
}

func latLng(p orb.Point) string {
	return strconv.FormatFloat(p.Lat(), 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon(), 'f', 6, 64)
}

// compositeName picks the city and country out of the geocoder results.
func compositeName(results []geocodeResult) string {
	var city, region, country string
	for _, r := range results {
		for _, ac := range r.AddressComponents {
			switch {
			case city == "" && hasType(ac.Types, "locality"):
				city = ac.LongName
			case region == "" && hasType(ac.Types, "administrative_area_level_1"):
				region = ac.LongName
			case country == "" && hasType(ac.Types, "country"):
				country = ac.LongName
			}
		}
	}
	if city == "" {
		city = region
	}
	switch {
	case city == "" && country == "":
		return ""
	case city == "":
		return country
	case country == "":
		return city
	}
	return city + search.NameDelimiter + country
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
