package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-secure-circle/internal/metrics"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Error is a failed object download. Message is what the storage API said.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// SupabaseStore downloads objects through the Supabase Storage REST API.
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewSupabaseStore creates a store for the project at projectURL. apiKey is sent as the
// project apikey header; the per-call token authorizes the download itself.
func NewSupabaseStore(projectURL, apiKey string, timeout time.Duration, m *metrics.Metrics) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(projectURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
	}
}

func (s *SupabaseStore) objectURL(bucket, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(bucket), strings.Join(segments, "/"))
}

// Download fetches bucket/path and returns the object bytes.
func (s *SupabaseStore) Download(ctx context.Context, bucket, path, token string) ([]byte, error) {
	if s.baseURL == "" {
		return nil, &Error{Message: "storage URL is not configured"}
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(bucket, path), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	}
	if s.apiKey != "" {
		hreq.Header.Set("apikey", s.apiKey)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(hreq)
	if err != nil {
		s.metrics.ObserveUpstream("storage", "error", time.Since(start))
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, &Error{Message: uerr.Err.Error()}
		}
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.ObserveUpstream("storage", "error", time.Since(start))
		return nil, &Error{Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.metrics.ObserveUpstream("storage", "error", time.Since(start))
		msg := errorMessage(resp.StatusCode, body)
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"bucket": bucket,
			"path":   path,
		}).Debug("Storage download failed")
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	s.metrics.ObserveUpstream("storage", "ok", time.Since(start))
	return body, nil
}

// errorMessage pulls a readable message out of a storage error body.
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, key := range []string{"message", "error_description", "error", "msg"} {
			if v := parsed.Get(key); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	if statusText := http.StatusText(status); statusText != "" {
		return statusText
	}
	return fmt.Sprintf("status %d", status)
}
