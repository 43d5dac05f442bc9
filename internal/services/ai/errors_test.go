package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransientUpstream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"overloaded status", &APIError{StatusCode: 529}, true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"server error", &APIError{StatusCode: 500}, true},
		{"permanent quota", &APIError{StatusCode: 429, IsPermanent: true}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"overloaded text", errors.New("model is overloaded, try again"), true},
		{"timeout text", errors.New("request timeout"), true},
		{"data error", &DataError{Reason: "bad json"}, false},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransientUpstream(tt.err); got != tt.want {
				t.Errorf("IsTransientUpstream(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsQuotaError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"permanent api error", &APIError{IsPermanent: true}, true},
		{"quota code", &APIError{Code: "insufficient_quota"}, true},
		{"quota text", errors.New("you have exceeded your quota"), true},
		{"billing text", errors.New("billing hard limit reached"), true},
		{"overloaded", &APIError{StatusCode: 529}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsQuotaError(tt.err); got != tt.want {
				t.Errorf("IsQuotaError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		retryCount int
		want       time.Duration
	}{
		{"quota backs off an hour", &APIError{Code: "insufficient_quota"}, 0, time.Hour},
		{"transient first retry", &APIError{StatusCode: 529}, 0, 30 * time.Second},
		{"transient second retry", &APIError{StatusCode: 529}, 1, 60 * time.Second},
		{"transient capped at 5m", &APIError{StatusCode: 529}, 50, 5 * time.Minute},
		{"unknown error default", errors.New("boom"), 2, 30 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetRetryDelay(tt.err, tt.retryCount); got != tt.want {
				t.Errorf("GetRetryDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractAPIError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf(`POST failed: 429 {"message":"quota exceeded","type":"requests","code":"insufficient_quota"}`)
	apiErr := ExtractAPIError(err)
	if apiErr == nil {
		t.Fatal("expected extracted error")
	}
	if apiErr.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
	}
	if apiErr.Code != "insufficient_quota" || !apiErr.IsPermanent {
		t.Errorf("Code = %s IsPermanent = %v, want insufficient_quota/true", apiErr.Code, apiErr.IsPermanent)
	}

	if got := ExtractAPIError(errors.New("no status here")); got != nil {
		t.Errorf("expected nil for unrecognized error, got %+v", got)
	}
}

func TestPipelineError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := &APIError{StatusCode: 529}
	pe := &PipelineError{Models: []string{"a", "b"}, LastErr: inner}

	var apiErr *APIError
	if !errors.As(pe, &apiErr) {
		t.Error("PipelineError should unwrap to its last error")
	}
}
