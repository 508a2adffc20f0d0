package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ivmel/modelbooth-bot/internal/config"
)

// Client talks to the image-editing backend. One call edits one base image
// toward one reference image.
type Client struct {
	apiKey     string
	baseURL    string
	editPath   string
	httpClient *http.Client
	log        *slog.Logger
}

// Image is one generation result. A response that carried no extractable
// URL yields an Image with an empty URL, which is not an error by itself.
type Image struct {
	URL string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:   cfg.GenAPIKey,
		baseURL:  strings.TrimRight(cfg.GenBaseURL, "/"),
		editPath: cfg.GenEditPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Edit submits one edit call: base image, reference image, prompt and a
// seed that only diversifies outputs. The call is bounded by the client
// timeout; a hung backend fails this one item rather than the batch.
func (c *Client) Edit(ctx context.Context, baseImage, refImage, prompt string, seed int64) (*Image, error) {
	payload := map[string]any{
		"model": "nano-banana-pro",
		"input": map[string]any{
			"prompt":      prompt,
			"image_input": []string{baseImage, refImage},
			"seed":        seed,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	endpoint, err := url.Parse(c.editPath)
	if err != nil {
		return nil, fmt.Errorf("parse edit path: %w", err)
	}
	fullURL := base.ResolveReference(endpoint).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post edit: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("edit call failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("backend error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	return &Image{URL: ExtractImageURL(rawBody)}, nil
}

// ExtractImageURL tries the known response shapes in order and returns the
// first image URL found, or "" when no shape matches. The backend has
// shipped several envelope formats; none of them is authoritative.
func ExtractImageURL(body []byte) string {
	// Shape 1: {"data":{"resultJson":"{\"resultUrls\":[...]}"}}
	var wrapped struct {
		Data struct {
			ResultJSON string `json:"resultJson"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data.ResultJSON != "" {
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(wrapped.Data.ResultJSON), &result); err == nil && len(result.ResultURLs) > 0 {
			return result.ResultURLs[0]
		}
	}

	// Shape 2: {"data":{"resultUrls":[...]}} or top-level resultUrls.
	var direct struct {
		ResultURLs []string `json:"resultUrls"`
		Data       struct {
			ResultURLs []string `json:"resultUrls"`
			URL        string   `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &direct); err == nil {
		if len(direct.Data.ResultURLs) > 0 {
			return direct.Data.ResultURLs[0]
		}
		if len(direct.ResultURLs) > 0 {
			return direct.ResultURLs[0]
		}
		if direct.Data.URL != "" {
			return direct.Data.URL
		}
	}

	// Shape 3: {"images":[{"url":...}]} or {"output":[...]} or {"url":...}.
	var flat struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
		Output []string `json:"output"`
		URL    string   `json:"url"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if len(flat.Images) > 0 && flat.Images[0].URL != "" {
			return flat.Images[0].URL
		}
		if len(flat.Output) > 0 {
			return flat.Output[0]
		}
		if flat.URL != "" {
			return flat.URL
		}
	}

	return ""
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
