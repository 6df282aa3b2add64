package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{
		MaxAttempts:       3,
		InitialDelay:      5 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffFactor:     2.0,
		Jitter:            false,
		RetriableStatuses: []int{500, 503},
		RetriableErrors:   []string{"connection refused"},
	}
}

func TestNewRetryer(t *testing.T) {
	retryer := NewRetryer(nil, nil)
	if retryer == nil {
		t.Fatal("Expected non-nil retryer")
	}
	if retryer.config == nil {
		t.Error("Expected default config when nil provided")
	}
	if retryer.logger == nil {
		t.Error("Expected default logger when nil provided")
	}
}

func TestRetryer_Do_Success(t *testing.T) {
	retryer := NewRetryer(fastConfig(), slog.Default())

	called := 0
	err := retryer.Do(context.Background(), func() error {
		called++
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if called != 1 {
		t.Errorf("Expected operation to be called once, got %d", called)
	}
}

func TestRetryer_Do_SuccessAfterRetry(t *testing.T) {
	retryer := NewRetryer(fastConfig(), slog.Default())

	called := 0
	err := retryer.Do(context.Background(), func() error {
		called++
		if called < 3 {
			return NewHTTPError(500, "Internal Server Error", "http://test.com")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if called != 3 {
		t.Errorf("Expected operation to be called 3 times, got %d", called)
	}
}

func TestRetryer_Do_MaxAttemptsReached(t *testing.T) {
	retryer := NewRetryer(fastConfig(), slog.Default())

	called := 0
	err := retryer.Do(context.Background(), func() error {
		called++
		return NewHTTPError(503, "Service Unavailable", "http://test.com")
	})
	if err == nil {
		t.Fatal("Expected error after max attempts")
	}
	if called != 3 {
		t.Errorf("Expected 3 attempts, got %d", called)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Errorf("Expected wrapped HTTPError, got %v", err)
	}
}

func TestRetryer_Do_NonRetriableError(t *testing.T) {
	retryer := NewRetryer(fastConfig(), slog.Default())

	called := 0
	err := retryer.Do(context.Background(), func() error {
		called++
		return NewHTTPError(404, "Not Found", "http://test.com")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if called != 1 {
		t.Errorf("Expected a single attempt for non-retriable error, got %d", called)
	}
}

func TestRetryer_Do_ContextCancellation(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = time.Second
	config.MaxDelay = time.Second
	retryer := NewRetryer(config, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	called := 0
	err := retryer.Do(ctx, func() error {
		called++
		cancel()
		return NewHTTPError(500, "Internal Server Error", "http://test.com")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context cancellation error, got %v", err)
	}
	if called != 1 {
		t.Errorf("Expected a single attempt before cancellation, got %d", called)
	}
}

func TestValue_ReturnsResult(t *testing.T) {
	retryer := NewRetryer(fastConfig(), slog.Default())

	called := 0
	result, err := Value(context.Background(), retryer, func() (string, error) {
		called++
		if called == 1 {
			return "", fmt.Errorf("dial tcp: connection refused")
		}
		return "BEGIN:VCALENDAR", nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result != "BEGIN:VCALENDAR" {
		t.Errorf("Expected result to be returned, got %q", result)
	}
	if called != 2 {
		t.Errorf("Expected 2 attempts, got %d", called)
	}
}

type mockNetError struct {
	timeout bool
}

func (e *mockNetError) Error() string   { return "mock network error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func TestIsRetriable(t *testing.T) {
	retryer := NewRetryer(fastConfig(), slog.Default())

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"retriable status", NewHTTPError(500, "Internal Server Error", "u"), true},
		{"non-retriable status", NewHTTPError(401, "Unauthorized", "u"), false},
		{"network timeout", &mockNetError{timeout: true}, true},
		{"network non-timeout", &mockNetError{timeout: false}, false},
		{"message pattern", errors.New("Dial: Connection Refused"), true},
		{"unknown", errors.New("parse failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryer.isRetriable(tt.err); got != tt.expected {
				t.Errorf("isRetriable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	config := &Config{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
	retryer := NewRetryer(config, slog.Default())

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}

	for _, tt := range tests {
		if got := retryer.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestCalculateDelay_Jitter(t *testing.T) {
	config := &Config{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
	retryer := NewRetryer(config, slog.Default())

	for i := 0; i < 20; i++ {
		got := retryer.calculateDelay(1)
		if got < 100*time.Millisecond || got > 110*time.Millisecond {
			t.Fatalf("Expected jittered delay within 10%%, got %v", got)
		}
	}
}

func TestHTTPError(t *testing.T) {
	err := NewHTTPError(403, "Forbidden", "https://example.com/cal.ics")

	expected := "HTTP 403: Forbidden (URL: https://example.com/cal.ics)"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
	if !err.IsUnauthorized() {
		t.Error("Expected 403 to count as unauthorized")
	}
	if NewHTTPError(500, "Internal Server Error", "u").IsUnauthorized() {
		t.Error("Expected 500 to not count as unauthorized")
	}
}
