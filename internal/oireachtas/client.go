// Package oireachtas is a client for the Houses of the Oireachtas open data
// API: the chamber-scoped debates listing, raw transcript documents, and the
// members listing.
package oireachtas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.oireachtas.ie/v1"

// DefaultUserAgent is the User-Agent header sent with requests.
const DefaultUserAgent = "dailwatch/1.0"

// DefaultPageDelay is the pause between consecutive page requests.
const DefaultPageDelay = time.Second

// HTTPClient is the subset of *http.Client the connector needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for a Client.
type Config struct {
	// BaseURL is the API root. Default: DefaultBaseURL.
	BaseURL string

	// PageSize is the limit parameter sent per page. Default: 50.
	PageSize int

	// PageDelay is the pause between page requests. Pages are never fetched
	// concurrently.
	PageDelay time.Duration

	// HTTPClient is the underlying HTTP client. If nil, a client with a 60s
	// timeout is used.
	HTTPClient HTTPClient

	// UserAgent is the User-Agent header.
	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		PageSize:   50,
		PageDelay:  DefaultPageDelay,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		UserAgent:  DefaultUserAgent,
	}
}

// Client fetches debate listings and documents sequentially.
type Client struct {
	baseURL    string
	pageSize   int
	pageDelay  time.Duration
	httpClient HTTPClient
	userAgent  string
}

// NewClient creates a Client, filling unset fields from DefaultConfig.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = def.HTTPClient
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		pageSize:   cfg.PageSize,
		pageDelay:  cfg.PageDelay,
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
	}
}

// Query scopes a debates listing. Dates are YYYY-MM-DD and inclusive.
type Query struct {
	Chamber     string
	ChamberType string
	Start       string
	End         string
}

// ListDebates pages through the debates listing until the reported total is
// reached or an empty page comes back.
func (c *Client) ListDebates(ctx context.Context, q Query) ([]DebateRecord, error) {
	if q.ChamberType == "" {
		q.ChamberType = "house"
	}

	var out []DebateRecord
	err := c.paginate(ctx, "debates", func(params url.Values) {
		params.Set("chamber_type", q.ChamberType)
		if q.Chamber != "" {
			params.Set("chamber", q.Chamber)
		}
		if q.Start != "" {
			params.Set("date_start", q.Start)
		}
		if q.End != "" {
			params.Set("date_end", q.End)
		}
	}, func(body []byte) (int, int, error) {
		var resp debatesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return 0, 0, fmt.Errorf("decode debates page: %w", err)
		}
		for _, r := range resp.Results {
			rec := r.DebateRecord
			rec.chamberCode = q.Chamber
			out = append(out, rec)
		}
		return len(resp.Results), resp.Head.total(), nil
	})
	return out, err
}

// ListMembers pages through the members of a chamber. date restricts to
// members sitting on that day when non-empty.
func (c *Client) ListMembers(ctx context.Context, chamber, date string) ([]Member, error) {
	var out []Member
	err := c.paginate(ctx, "members", func(params url.Values) {
		if chamber != "" {
			params.Set("chamber", chamber)
		}
		if date != "" {
			params.Set("date_start", date)
		}
	}, func(body []byte) (int, int, error) {
		var resp membersResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return 0, 0, fmt.Errorf("decode members page: %w", err)
		}
		for _, r := range resp.Results {
			out = append(out, r.Member)
		}
		return len(resp.Results), resp.Head.total(), nil
	})
	return out, err
}

// paginate walks skip/limit pages of endpoint. decode returns the number of
// results on the page and the reported total.
func (c *Client) paginate(ctx context.Context, endpoint string, setParams func(url.Values), decode func([]byte) (int, int, error)) error {
	skip := 0
	for page := 0; ; page++ {
		if page > 0 && c.pageDelay > 0 {
			timer := time.NewTimer(c.pageDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		params := url.Values{}
		setParams(params)
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("skip", strconv.Itoa(skip))

		body, err := c.get(ctx, c.baseURL+"/"+endpoint+"?"+params.Encode(), "application/json")
		if err != nil {
			return fmt.Errorf("fetch %s page %d: %w", endpoint, page, err)
		}
		n, total, err := decode(body)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		skip += n
		if total > 0 && skip >= total {
			return nil
		}
	}
}

// FetchDocument downloads a raw transcript document.
func (c *Client) FetchDocument(ctx context.Context, uri string) ([]byte, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("document uri is empty")
	}
	body, err := c.get(ctx, uri, "application/xml")
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", uri, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, target, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
