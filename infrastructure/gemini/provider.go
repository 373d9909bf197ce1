package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-secure-circle/domain/chat"
	"chat-secure-circle/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

// APIError is a non-2xx answer from the generateContent endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Gemini API error: %d - %s", e.StatusCode, e.Body)
}

type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewProvider creates a Gemini provider. A zero timeout leaves calls bounded only by ctx.
func NewProvider(apiKey, baseURL, model string, timeout time.Duration, m *metrics.Metrics) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		metrics: m,
	}
}

// Model returns the configured model identifier.
func (p *Provider) Model() string {
	return p.model
}

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, url.QueryEscape(p.apiKey))
}

// GenerateContent posts the payload once. There is no retry: every failure is returned.
func (p *Provider) GenerateContent(ctx context.Context, payload *chat.Payload) (*chat.GenerateResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(hreq)
	if err != nil {
		p.metrics.ObserveUpstream("gemini", "error", time.Since(start))
		// url.Error carries the request URL, which holds the key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, fmt.Errorf("gemini request failed: %w", uerr.Err)
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.metrics.ObserveUpstream("gemini", "error", time.Since(start))
		return nil, fmt.Errorf("read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.metrics.ObserveUpstream("gemini", "error", time.Since(start))
		logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body), "model": p.model}).Debug("Gemini API returned non-success status")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	p.metrics.ObserveUpstream("gemini", "ok", time.Since(start))

	var out chat.GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if out.UsageMetadata != nil {
		logrus.WithFields(logrus.Fields{
			"model":             p.model,
			"usage_total":       out.UsageMetadata.TotalTokenCount,
			"usage_prompt":      out.UsageMetadata.PromptTokenCount,
			"usage_candidates":  out.UsageMetadata.CandidatesTokenCount,
			"candidates_return": len(out.Candidates),
		}).Debug("Gemini usage")
	}

	return &out, nil
}
