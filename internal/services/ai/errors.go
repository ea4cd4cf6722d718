package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
)

var (
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// APIError represents an error from the AI backend
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // true for quota errors, false for rate limits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.IsPermanent
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests && !e.IsPermanent
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "insufficient_quota"
	}

	errStr := err.Error()
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "billing")
}

// IsPermanentError reports errors retrying cannot fix: bad credentials,
// malformed requests and exhausted quota.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if IsQuotaError(err) || errors.Is(err, ErrMissingAPIKey) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}

// ExtractAPIError converts an SDK failure into an *APIError. Returns nil for
// errors that did not come from the API.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var existing *APIError
	if errors.As(err, &existing) {
		return existing
	}

	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		apiErr := &APIError{
			StatusCode: sdkErr.StatusCode,
			Message:    sdkErr.Message,
			Type:       sdkErr.Type,
			Code:       sdkErr.Code,
		}
		if apiErr.Message == "" {
			apiErr.Message = err.Error()
		}
		finishAPIError(apiErr)
		return apiErr
	}

	// Some transports only surface the status in the message text
	errStr := err.Error()
	if !strings.Contains(errStr, "429") {
		return nil
	}
	apiErr := &APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    errStr,
		Type:       "rate_limit_error",
	}
	if jsonStart := strings.Index(errStr, "{"); jsonStart != -1 {
		jsonStr := errStr[jsonStart:]
		if jsonEnd := strings.LastIndex(jsonStr, "}"); jsonEnd != -1 {
			var errorData struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			}
			if json.Unmarshal([]byte(jsonStr[:jsonEnd+1]), &errorData) == nil {
				apiErr.Message = errorData.Message
				apiErr.Type = errorData.Type
				apiErr.Code = errorData.Code
			}
		}
	}
	finishAPIError(apiErr)
	return apiErr
}

func finishAPIError(apiErr *APIError) {
	if apiErr.Code == "insufficient_quota" {
		apiErr.IsPermanent = true
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		return
	}
	// Rate limits typically reset within a minute; quota needs a human
	retryAfter := 60 * time.Second
	if apiErr.IsPermanent {
		retryAfter = time.Hour
	}
	apiErr.RetryAfter = &retryAfter
}

// GetRetryDelay calculates the delay before retrying based on error type
func GetRetryDelay(err error, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	factor := time.Duration(1) << uint(attempt)

	if IsQuotaError(err) {
		return minDuration(time.Hour*factor, 24*time.Hour)
	}

	if IsRateLimitError(err) {
		delay := minDuration(60*time.Second*factor, 15*time.Minute)
		if apiErr := ExtractAPIError(err); apiErr != nil && apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
			delay = *apiErr.RetryAfter
		}
		return delay
	}

	return minDuration(5*time.Second*factor, 5*time.Minute)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
