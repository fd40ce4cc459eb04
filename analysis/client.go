// Package analysis talks to the remote verse analysis service. The
// service is opaque to this repository: it takes a verse and returns its
// scansion, detected meter and rhyme.
package analysis

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
)

// ErrService reports a non-2xx answer from the analysis service.
var ErrService = errors.New("analysis service error")

type Request struct {
	Text               string `json:"text"`
	DetectBahr         bool   `json:"detect_bahr"`
	SuggestCorrections bool   `json:"suggest_corrections"`
	AnalyzeRhyme       bool   `json:"analyze_rhyme"`
	PrecomputedPattern string `json:"precomputed_pattern,omitempty"`
	ExpectedMeter      string `json:"expected_meter,omitempty"`
}

type BahrInfo struct {
	ID           int     `json:"id"`
	NameAr       string  `json:"name_ar"`
	NameEn       string  `json:"name_en"`
	Confidence   float64 `json:"confidence"`
	MatchQuality string  `json:"match_quality,omitempty"`
}

type RhymeInfo struct {
	Rawi          string   `json:"rawi"`
	RawiVowel     string   `json:"rawi_vowel"`
	RhymeTypes    []string `json:"rhyme_types"`
	DescriptionAr string   `json:"description_ar"`
	DescriptionEn string   `json:"description_en"`
}

type Response struct {
	Text   string     `json:"text"`
	Taqti3 string     `json:"taqti3"`
	Bahr   *BahrInfo  `json:"bahr,omitempty"`
	Score  float64    `json:"score"`
	Rhyme  *RhymeInfo `json:"rhyme,omitempty"`
	Errors []string   `json:"errors,omitempty"`
}

// Client calls the analysis API rooted at BaseURL (for example
// http://localhost:8000/api/v1).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: httpClient}
}

// AnalyzePath is the endpoint Analyze posts to, relative to BaseURL.
const AnalyzePath = "/analyze-v2/"

// Analyze submits one verse.
func (c *Client) Analyze(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+AnalyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, errorDetail(resp.Body))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	return &out, nil
}

// errorDetail extracts FastAPI style {"detail": ...} bodies, falling back to raw text.
func errorDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch {
		case payload.Detail != nil:
			return fmt.Sprint(payload.Detail)
		case payload.Error != nil:
			return fmt.Sprint(payload.Error)
		}
	}
	return strings.TrimSpace(string(raw))
}

// HasDiacritics reports whether text carries Arabic harakat (U+064B..U+0652).
func HasDiacritics(text string) bool {
	for _, r := range text {
		if r >= '\u064B' && r <= '\u0652' {
			return true
		}
	}
	return false
}
