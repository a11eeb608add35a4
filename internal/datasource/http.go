package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region config
// HTTPConfig holds remote corpus parameters.
type HTTPConfig struct {
	URL           string
	MaxResults    int
	Timeout       time.Duration
	RatePerSecond float64
}

// DefaultHTTPConfig returns the remote corpus defaults.
// Reads from env vars: EVOLVE_HTTP_SOURCE_URL, EVOLVE_HTTP_SOURCE_MAX_RESULTS,
// EVOLVE_HTTP_SOURCE_TIMEOUT, EVOLVE_HTTP_SOURCE_RATE.
func DefaultHTTPConfig() HTTPConfig {
	cfg := HTTPConfig{
		MaxResults:    50,
		Timeout:       10 * time.Second,
		RatePerSecond: 1,
	}
	if v := os.Getenv("EVOLVE_HTTP_SOURCE_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("EVOLVE_HTTP_SOURCE_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxResults = n
		}
	}
	if v := os.Getenv("EVOLVE_HTTP_SOURCE_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("EVOLVE_HTTP_SOURCE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RatePerSecond = f
		}
	}
	return cfg
}
// #endregion config

// #region source
// HTTP fetches a JSON array of sentences (or {"sentences": [...]}) from a
// remote endpoint. Requests are paced by a token bucket.
type HTTP struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP builds an HTTP source. A zero RatePerSecond disables pacing.
func NewHTTP(cfg HTTPConfig) *HTTP {
	h := &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RatePerSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return h
}

func (h *HTTP) FetchBatch(ctx context.Context, qualityThreshold float64) ([]triplet.Sentence, error) {
	if h.cfg.URL == "" {
		return nil, fmt.Errorf("http source: no url configured")
	}
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", h.cfg.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", h.cfg.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	sentences, err := decodeSentences(body)
	if err != nil {
		return nil, err
	}
	for i := range sentences {
		if sentences[i].Source == "" {
			sentences[i].Source = "http"
		}
	}
	out := Dedupe(Filter(sentences, qualityThreshold), nil)
	if h.cfg.MaxResults > 0 && len(out) > h.cfg.MaxResults {
		out = out[:h.cfg.MaxResults]
	}
	return out, nil
}

func decodeSentences(body []byte) ([]triplet.Sentence, error) {
	body = bytes.TrimSpace(body)
	if bytes.HasPrefix(body, []byte("[")) {
		var list []triplet.Sentence
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode sentences: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Sentences []triplet.Sentence `json:"sentences"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode sentences: %w", err)
	}
	return wrapped.Sentences, nil
}
// #endregion source
