// This package contains a client for a TMDB-compatible movie catalog, used as
// the round supplier for the prefetch buffer.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

// Filters narrow the candidate pool for a round.
type Filters struct {
	// YearFrom and YearTo bound the primary release year, inclusive. Zero
	// means unbounded.
	YearFrom int
	YearTo   int
	// Language is an ISO 639-1 original language tag. Empty means any.
	Language string
}

// Round is one game item: a movie, its trailer and the rating to guess.
type Round struct {
	// ID is the decimal movie id. It identifies the round for deduplication.
	ID         string
	Title      string
	Year       int
	Language   string
	Rating     float64
	TrailerKey string
	PosterPath string
}

type Option = func(*Client)

func WithBaseURL(baseURL string) Option {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		panic("baseURL can't be blank")
	}
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	if client == nil {
		panic("client can't be nil")
	}
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithLogger(logger *zap.Logger) Option {
	if logger == nil {
		panic("logger can't be nil")
	}
	return func(c *Client) {
		c.logger = logger
	}
}

func WithRateLimit(rps float64, burst int) Option {
	if rps <= 0 {
		panic("rps can't be <= 0")
	}
	if burst < 1 {
		panic("burst can't be < 1")
	}
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMinVotes(votes int) Option {
	if votes < 0 {
		panic("votes can't be < 0")
	}
	return func(c *Client) {
		c.minVotes = votes
	}
}

func WithPageWindow(pages int) Option {
	if pages < 1 {
		panic("pages can't be < 1")
	}
	return func(c *Client) {
		c.pageWindow = pages
	}
}

// Client talks to a TMDB-compatible API. It never retries and never sleeps
// outside its rate limiter; retry policy belongs to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	minVotes   int
	pageWindow int
}

func New(apiKey string, options ...Option) *Client {
	if strings.TrimSpace(apiKey) == "" {
		panic("apiKey can't be blank")
	}

	client := Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: time.Second * 10},
		limiter:    rate.NewLimiter(4, 2),
		logger:     zap.NewNop(),
		minVotes:   300,
		pageWindow: 25,
	}
	for _, opt := range options {
		opt(&client)
	}

	return &client
}

// Round fetches one candidate round matching the filters. It implements the
// buffer's supplier contract: false with a nil error means no candidate this
// attempt (empty discover page, or a movie without a usable trailer).
func (c *Client) Round(ctx context.Context, filters Filters) (Round, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Round{}, false, err
	}

	m, ok, err := c.discover(ctx, filters)
	if err != nil || !ok {
		return Round{}, false, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Round{}, false, err
	}

	key, ok, err := c.trailer(ctx, m.ID)
	if err != nil || !ok {
		return Round{}, false, err
	}

	var year int
	if len(m.ReleaseDate) >= 4 {
		year, _ = strconv.Atoi(m.ReleaseDate[:4])
	}

	round := Round{
		ID:         strconv.Itoa(m.ID),
		Title:      m.Title,
		Year:       year,
		Language:   m.OriginalLanguage,
		Rating:     m.VoteAverage,
		TrailerKey: key,
		PosterPath: m.PosterPath,
	}

	c.logger.Debug("picked candidate",
		zap.String("id", round.ID),
		zap.String("title", round.Title),
		zap.Int("year", round.Year),
	)

	return round, true, nil
}

type movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalLanguage string  `json:"original_language"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	PosterPath       string  `json:"poster_path"`
}

type discoverResponse struct {
	Page       int     `json:"page"`
	Results    []movie `json:"results"`
	TotalPages int     `json:"total_pages"`
}

func (c *Client) discover(ctx context.Context, filters Filters) (movie, bool, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("sort_by", "popularity.desc")
	q.Set("include_adult", "false")
	q.Set("vote_count.gte", strconv.Itoa(c.minVotes))
	q.Set("page", strconv.Itoa(rand.IntN(c.pageWindow)+1))
	if filters.YearFrom > 0 {
		q.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", filters.YearFrom))
	}
	if filters.YearTo > 0 {
		q.Set("primary_release_date.lte", fmt.Sprintf("%d-12-31", filters.YearTo))
	}
	if filters.Language != "" {
		q.Set("with_original_language", filters.Language)
	}

	var res discoverResponse
	if err := c.get(ctx, "/discover/movie", q, &res); err != nil {
		return movie{}, false, fmt.Errorf("discover movies: %w", err)
	}

	if len(res.Results) == 0 {
		return movie{}, false, nil
	}

	return res.Results[rand.IntN(len(res.Results))], true, nil
}

type video struct {
	Key      string `json:"key"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

type videosResponse struct {
	Results []video `json:"results"`
}

// trailer returns the movie's YouTube trailer key, preferring official
// trailers over the rest.
func (c *Client) trailer(ctx context.Context, id int) (string, bool, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)

	var res videosResponse
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/videos", id), q, &res); err != nil {
		return "", false, fmt.Errorf("movie videos: %w", err)
	}

	var key string
	for _, v := range res.Results {
		if v.Site != "YouTube" || v.Type != "Trailer" {
			continue
		}
		if v.Official {
			return v.Key, true, nil
		}
		if key == "" {
			key = v.Key
		}
	}

	return key, key != "", nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+path+"?"+query.Encode(),
		nil,
	)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", res.Status)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
