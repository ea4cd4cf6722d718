package ai

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	rateLimited := &APIError{StatusCode: 429, Type: "rate_limit_error"}
	quota := &APIError{StatusCode: 429, Code: "insufficient_quota", IsPermanent: true}
	unauthorized := &APIError{StatusCode: 401}

	tests := []struct {
		name      string
		err       error
		rateLimit bool
		quota     bool
		permanent bool
	}{
		{"nil", nil, false, false, false},
		{"rate limit", fmt.Errorf("wrapped: %w", rateLimited), true, false, false},
		{"quota", quota, false, true, true},
		{"unauthorized", unauthorized, false, false, true},
		{"missing key", ErrMissingAPIKey, false, false, true},
		{"plain text 429", errors.New("POST /chat: 429 Too Many Requests"), true, false, false},
		{"other", errors.New("connection reset"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRateLimitError(tt.err); got != tt.rateLimit {
				t.Errorf("IsRateLimitError() = %v, want %v", got, tt.rateLimit)
			}
			if got := IsQuotaError(tt.err); got != tt.quota {
				t.Errorf("IsQuotaError() = %v, want %v", got, tt.quota)
			}
			if got := IsPermanentError(tt.err); got != tt.permanent {
				t.Errorf("IsPermanentError() = %v, want %v", got, tt.permanent)
			}
		})
	}
}

func TestExtractAPIError_FromMessage(t *testing.T) {
	t.Parallel()

	err := errors.New(`429 {"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}`)
	apiErr := ExtractAPIError(err)
	if apiErr == nil {
		t.Fatal("expected API error")
	}
	if !apiErr.IsPermanent {
		t.Error("insufficient_quota should be permanent")
	}
	if apiErr.RetryAfter == nil || *apiErr.RetryAfter != time.Hour {
		t.Errorf("retry after = %v, want 1h", apiErr.RetryAfter)
	}

	if ExtractAPIError(errors.New("dns failure")) != nil {
		t.Error("non-API errors should not be converted")
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()

	rateLimited := &APIError{StatusCode: 429}
	quota := &APIError{StatusCode: 429, IsPermanent: true}
	other := errors.New("timeout")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
	}{
		{"default first", other, 0, 5 * time.Second},
		{"default capped", other, 10, 5 * time.Minute},
		{"rate limit first", rateLimited, 0, 60 * time.Second},
		{"rate limit capped", rateLimited, 8, 15 * time.Minute},
		{"quota first", quota, 0, time.Hour},
		{"quota capped", quota, 9, 24 * time.Hour},
		{"negative attempt", other, -3, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetRetryDelay(tt.err, tt.attempt); got != tt.want {
				t.Errorf("GetRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}
