package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ivmel/modelbooth-bot/internal/config"
)

// ErrSourceUnavailable wraps any failure to pull images from the social
// media source: network errors, bad statuses, or a response in none of the
// known shapes.
var ErrSourceUnavailable = errors.New("image source unavailable")

// Fetcher pulls recent post images for a public handle from a third-party
// scraping API.
type Fetcher struct {
	apiKey     string
	baseURL    string
	provider   string
	httpClient *http.Client
	log        *slog.Logger
}

func NewFetcher(cfg config.Config, log *slog.Logger) *Fetcher {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Fetcher{
		apiKey:   cfg.SourceAPIKey,
		baseURL:  strings.TrimRight(cfg.SourceAPIURL, "/"),
		provider: cfg.SourceProvider,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Fetch returns up to limit image URLs from the handle's recent posts, in
// post order. The limit is advisory; the source may return fewer.
func (f *Fetcher) Fetch(ctx context.Context, handle string, limit int) ([]string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", ErrSourceUnavailable)
	}

	endpoint := fmt.Sprintf("%s/v1/%s/posts", f.baseURL, url.PathEscape(f.provider))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	q := req.URL.Query()
	q.Set("handle", handle)
	q.Set("limit", strconv.Itoa(limit))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	urls := extractImageURLs(rawBody)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no images in response", ErrSourceUnavailable)
	}
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

// extractImageURLs tries the known response shapes in order. Scraping
// providers disagree on envelopes; the payloads below cover the ones seen
// in production.
func extractImageURLs(body []byte) []string {
	// Shape 1: {"data":{"items":[{"image_url":...}]}}
	var nested struct {
		Data struct {
			Items []struct {
				ImageURL string `json:"image_url"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && len(nested.Data.Items) > 0 {
		var urls []string
		for _, item := range nested.Data.Items {
			if item.ImageURL != "" {
				urls = append(urls, item.ImageURL)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}

	// Shape 2: {"posts":[{"display_url":...}]}
	var posts struct {
		Posts []struct {
			DisplayURL string `json:"display_url"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(body, &posts); err == nil && len(posts.Posts) > 0 {
		var urls []string
		for _, p := range posts.Posts {
			if p.DisplayURL != "" {
				urls = append(urls, p.DisplayURL)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}

	// Shape 3: bare list of URLs.
	var bare []string
	if err := json.Unmarshal(body, &bare); err == nil && len(bare) > 0 {
		return bare
	}

	return nil
}
