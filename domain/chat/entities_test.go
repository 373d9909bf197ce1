package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_Text(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "empty object", body: `{}`, expected: "Hello"},
		{name: "empty message", body: `{"message":""}`, expected: "Hello"},
		{name: "null message", body: `{"message":null}`, expected: "Hello"},
		{name: "message set", body: `{"message":"What is this?"}`, expected: "What is this?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ChatRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.expected, req.Text())
			assert.False(t, req.HasImage())
		})
	}
}

func TestChatRequest_ImageURL(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"message":"hi","imageUrl":"chat_images/u1/abc"}`), &req))

	assert.True(t, req.HasImage())
	assert.Equal(t, "chat_images/u1/abc", req.ImageURL)
}

func TestPayload_WireFormat(t *testing.T) {
	payload := NewTextPayload("Describe")
	payload.AppendInlineData(ImageMimeType, "aGVsbG8=")

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	expected := `{"contents":[{"parts":[{"text":"Describe"},{"inlineData":{"mimeType":"image/jpeg","data":"aGVsbG8="}}]}]}`
	assert.JSONEq(t, expected, string(data))
}

func TestPayload_Parts(t *testing.T) {
	t.Run("text only", func(t *testing.T) {
		payload := NewTextPayload("hi")
		parts := payload.Parts()
		require.Len(t, parts, 1)
		assert.Equal(t, "hi", parts[0].Text)
		assert.Nil(t, parts[0].InlineData)
	})

	t.Run("nil payload", func(t *testing.T) {
		var payload *Payload
		assert.Nil(t, payload.Parts())
	})

	t.Run("append to empty payload", func(t *testing.T) {
		payload := &Payload{}
		payload.AppendInlineData(ImageMimeType, "AA==")
		require.Len(t, payload.Parts(), 1)
		assert.Equal(t, "AA==", payload.Parts()[0].InlineData.Data)
	})
}

func TestGenerateResponse_ReplyText(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "two parts joined with space",
			body:     `{"candidates":[{"content":{"parts":[{"text":"Hi"},{"text":"there"}]}}]}`,
			expected: "Hi there",
		},
		{
			name:     "single part",
			body:     `{"candidates":[{"content":{"parts":[{"text":"Hello!"}]}}]}`,
			expected: "Hello!",
		},
		{
			name:     "only first candidate used",
			body:     `{"candidates":[{"content":{"parts":[{"text":"first"}]}},{"content":{"parts":[{"text":"second"}]}}]}`,
			expected: "first",
		},
		{
			name:     "part without text",
			body:     `{"candidates":[{"content":{"parts":[{"text":"a"},{},{"text":"b"}]}}]}`,
			expected: "a  b",
		},
		{name: "empty candidates", body: `{"candidates":[]}`, expected: ""},
		{name: "missing candidates", body: `{}`, expected: ""},
		{name: "candidate without content", body: `{"candidates":[{"finishReason":"SAFETY"}]}`, expected: ""},
		{name: "content without parts", body: `{"candidates":[{"content":{"parts":[]}}]}`, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp GenerateResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.Equal(t, tt.expected, resp.ReplyText())
		})
	}
}

func TestResult(t *testing.T) {
	ok := Success("")
	assert.True(t, ok.OK())
	assert.Empty(t, ok.Text)

	failed := Failure(ErrMissingAPIKey)
	assert.False(t, failed.OK())
	assert.EqualError(t, failed.Err, "Missing Gemini API key")
}

func TestErrorResponse_JSON(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Error: "Missing Authorization header"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Missing Authorization header"}`, string(data))

	data, err = json.Marshal(ChatResponse{Response: ""})
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":""}`, string(data))
}
