package chat

import "context"

// ProviderPort abstracts the generative-language endpoint (e.g., Gemini)
type ProviderPort interface {
	GenerateContent(ctx context.Context, payload *Payload) (*GenerateResponse, error)
}

// ImageStore downloads stored objects on behalf of the caller identified by token.
type ImageStore interface {
	Download(ctx context.Context, bucket, path, token string) ([]byte, error)
}
