package provider

import (
	"context"
	"errors"
	"strings"
)

// Provider defines the interface for text generation backends.
type Provider interface {
	// CreateCompletion generates one reply for the given conversation.
	CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openai", "gemini")
	Name() string
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // The message content
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	// Messages is the conversation history
	Messages []Message `json:"messages"`

	// Model is the model to use
	Model string `json:"model,omitempty"`

	// Temperature controls randomness (0.0-2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	// Content is the generated text
	Content string `json:"content"`

	// FinishReason explains why generation stopped
	FinishReason string `json:"finish_reason"`

	// Usage contains token usage information
	Usage Usage `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider      string `json:"provider"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	StatusCode    int    `json:"status_code,omitempty"`
	IsRetryable   bool   `json:"is_retryable"`
	OriginalError error  `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return e.Provider + " error: " + e.Message
}

// Unwrap returns the original error
func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// Common error codes
const (
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeAuthentication  = "authentication_error"
	ErrorCodeRateLimit       = "rate_limit_exceeded"
	ErrorCodeServerError     = "server_error"
	ErrorCodeTimeout         = "timeout"
	ErrorCodeModelNotFound   = "model_not_found"
	ErrorCodeContentFiltered = "content_filtered"
	ErrorCodeEmptyResponse   = "empty_response"
	ErrorCodeUnknown         = "unknown_error"
)

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, original error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		OriginalError: original,
		IsRetryable:   isRetryableError(code),
	}
}

// IsRetryable reports whether err is a ProviderError worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.IsRetryable
}

func isRetryableError(code string) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// codeForStatus maps an HTTP status to an error code.
func codeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrorCodeAuthentication
	case status == 404:
		return ErrorCodeModelNotFound
	case status == 429:
		return ErrorCodeRateLimit
	case status == 408 || status == 504:
		return ErrorCodeTimeout
	case status >= 500:
		return ErrorCodeServerError
	case status >= 400:
		return ErrorCodeInvalidRequest
	default:
		return ErrorCodeUnknown
	}
}

// classifyError derives an error code from SDK errors that only expose text.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "credential") || strings.Contains(msg, "403") || strings.Contains(msg, "401"):
		return ErrorCodeAuthentication
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "throttl"):
		return ErrorCodeRateLimit
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return ErrorCodeModelNotFound
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrorCodeTimeout
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "validation") || strings.Contains(msg, "400"):
		return ErrorCodeInvalidRequest
	case strings.Contains(msg, "500") || strings.Contains(msg, "503") || strings.Contains(msg, "server") || strings.Contains(msg, "unavailable"):
		return ErrorCodeServerError
	default:
		return ErrorCodeUnknown
	}
}

// wrapError converts an SDK error into a ProviderError.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return NewProviderError(provider, classifyError(err), err.Error(), err)
}
