package chat

import "strings"

// Core chat entities independent of frameworks and vendors

// DefaultMessage is sent to the provider when the client supplies no text.
const DefaultMessage = "Hello"

// ImageMimeType is declared for every inline image part.
// Content is not sniffed.
const ImageMimeType = "image/jpeg"

// ChatRequest is the inbound proxy body.
type ChatRequest struct {
	Message  string `json:"message,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Text returns the message, or DefaultMessage when it is empty.
func (r ChatRequest) Text() string {
	if r.Message == "" {
		return DefaultMessage
	}
	return r.Message
}

// HasImage reports whether the request references a stored image.
func (r ChatRequest) HasImage() bool {
	return r.ImageURL != ""
}

// Payload is the generateContent request envelope.
type Payload struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part holds either Text or InlineData.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// NewTextPayload builds a single turn holding one text part.
func NewTextPayload(text string) *Payload {
	return &Payload{
		Contents: []Content{
			{Parts: []Part{{Text: text}}},
		},
	}
}

// AppendInlineData adds an inline data part to the first turn.
func (p *Payload) AppendInlineData(mimeType, data string) {
	if len(p.Contents) == 0 {
		p.Contents = append(p.Contents, Content{})
	}
	p.Contents[0].Parts = append(p.Contents[0].Parts, Part{
		InlineData: &InlineData{MimeType: mimeType, Data: data},
	})
}

// Parts returns the parts of the first turn.
func (p *Payload) Parts() []Part {
	if p == nil || len(p.Contents) == 0 {
		return nil
	}
	return p.Contents[0].Parts
}

// GenerateResponse is the subset of the generateContent response we read.
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ReplyText joins the text of the first candidate's parts with a single space.
// A response without candidates or parts yields the empty string.
func (r *GenerateResponse) ReplyText() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	content := r.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return ""
	}
	texts := make([]string, len(content.Parts))
	for i, part := range content.Parts {
		texts[i] = part.Text
	}
	return strings.Join(texts, " ")
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
