package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-secure-circle/domain/chat"

	"github.com/sirupsen/logrus"
)

// DefaultBucket holds chat image uploads.
const DefaultBucket = "chat_images"

// Config is injected at construction; the service never reads the environment.
type Config struct {
	APIKey string
	Bucket string
}

// Service orchestrates the chat proxy use case
type Service struct {
	provider chat.ProviderPort
	store    chat.ImageStore
	config   Config
}

func NewService(provider chat.ProviderPort, store chat.ImageStore, config Config) *Service {
	if config.Bucket == "" {
		config.Bucket = DefaultBucket
	}
	return &Service{
		provider: provider,
		store:    store,
		config:   config,
	}
}

// Handle decodes a raw request body and runs it. Every failure, including a body
// that does not decode, comes back in the Result rather than as a separate error.
func (s *Service) Handle(ctx context.Context, body []byte, authorization string) chat.Result {
	var req *chat.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return chat.Failure(fmt.Errorf("invalid request body: %w", err))
	}
	if req == nil {
		return chat.Failure(errors.New("invalid request body: expected a JSON object"))
	}
	return s.Chat(ctx, *req, BearerToken(authorization))
}

// Chat composes the provider payload, calls the provider once and extracts the reply.
func (s *Service) Chat(ctx context.Context, req chat.ChatRequest, token string) chat.Result {
	if s.config.APIKey == "" {
		return chat.Failure(chat.ErrMissingAPIKey)
	}

	payload, err := s.BuildPayload(ctx, req, token)
	if err != nil {
		return chat.Failure(err)
	}

	resp, err := s.provider.GenerateContent(ctx, payload)
	if err != nil {
		return chat.Failure(err)
	}

	reply := resp.ReplyText()
	if reply == "" {
		logrus.WithField("candidates", len(resp.Candidates)).Debug("Provider returned no reply text")
	}
	return chat.Success(reply)
}

// BuildPayload returns the single-turn payload for req, downloading and inlining the
// referenced image when there is one.
func (s *Service) BuildPayload(ctx context.Context, req chat.ChatRequest, token string) (*chat.Payload, error) {
	payload := chat.NewTextPayload(req.Text())
	if !req.HasImage() {
		return payload, nil
	}

	if token == "" {
		return nil, chat.ErrMissingAuthorization
	}

	path := ObjectPath(req.ImageURL, s.config.Bucket)
	data, err := s.store.Download(ctx, s.config.Bucket, path, token)
	if err != nil {
		return nil, fmt.Errorf("Error fetching image: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": s.config.Bucket,
		"path":   path,
		"bytes":  len(data),
	}).Debug("Attached image to payload")

	payload.AppendInlineData(chat.ImageMimeType, base64.StdEncoding.EncodeToString(data))
	return payload, nil
}

// BearerToken returns what follows "Bearer " in an Authorization header value.
func BearerToken(header string) string {
	_, token, found := strings.Cut(header, "Bearer ")
	if !found {
		return ""
	}
	token, _, _ = strings.Cut(token, "Bearer ")
	return token
}

// ObjectPath strips the first "<bucket>/" from a client image reference.
func ObjectPath(imageURL, bucket string) string {
	return strings.Replace(imageURL, bucket+"/", "", 1)
}
