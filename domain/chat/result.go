package chat

import "errors"

var (
	ErrMissingAPIKey        = errors.New("Missing Gemini API key")
	ErrMissingAuthorization = errors.New("Missing Authorization header")
)

// Result is the outcome of one proxied chat call: either reply text or an error.
type Result struct {
	Text string
	Err  error
}

func Success(text string) Result {
	return Result{Text: text}
}

func Failure(err error) Result {
	return Result{Err: err}
}

func (r Result) OK() bool {
	return r.Err == nil
}
