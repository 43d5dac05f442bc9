package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError represents an error from the upstream generation service API.
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	IsPermanent bool // true for quota exhaustion, false for overload
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// DataError marks a structurally invalid response. Data errors are never
// retried: they mean the service returned garbage, not that it is down.
type DataError struct {
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid generation response: %s: %v", e.Reason, e.Err)
	}
	return "invalid generation response: " + e.Reason
}

func (e *DataError) Unwrap() error { return e.Err }

// IsDataError checks whether an error is a structural-validation failure.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// IsTransientUpstream checks whether an error belongs to the
// overloaded/unavailable class that warrants a bounded retry.
func IsTransientUpstream(err error) bool {
	if err == nil {
		return false
	}
	if IsDataError(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsPermanent {
			return false
		}
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 529:
			return true
		}
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "unavailable") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "timeout")
}

// IsQuotaError checks if an error is a quota/budget exhaustion error. Quota
// errors are fatal for the request and flip the orchestrator into
// cache-only degraded mode.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError extracts structured API error details from an SDK error.
// OpenAI SDK errors often embed JSON in the error message.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	errStr := err.Error()

	statusCode := 0
	for _, code := range []int{429, 500, 502, 503, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}
	if statusCode == 0 {
		return nil
	}

	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    errStr,
		Type:       "upstream_error",
	}

	if jsonStart := strings.Index(errStr, "{"); jsonStart != -1 {
		jsonStr := errStr[jsonStart:]
		if jsonEnd := strings.LastIndex(jsonStr, "}"); jsonEnd != -1 {
			jsonStr = jsonStr[:jsonEnd+1]
			var errorData struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			}
			if json.Unmarshal([]byte(jsonStr), &errorData) == nil {
				if errorData.Message != "" {
					apiErr.Message = errorData.Message
				}
				apiErr.Type = errorData.Type
				apiErr.Code = errorData.Code
				if errorData.Code == "insufficient_quota" {
					apiErr.IsPermanent = true
				}
			}
		}
	}

	return apiErr
}

// GetRetryDelay returns how long to wait before re-enqueueing a failed job.
// Quota exhaustion backs off an hour; transient upstream errors back off
// linearly with the retry count.
func GetRetryDelay(err error, retryCount int) time.Duration {
	if IsQuotaError(err) {
		return time.Hour
	}
	if IsTransientUpstream(err) {
		delay := time.Duration(retryCount+1) * 30 * time.Second
		if delay > 5*time.Minute {
			delay = 5 * time.Minute
		}
		return delay
	}
	return 30 * time.Second
}

// PipelineError is the terminal failure after every configured model has
// been exhausted. It carries the last error observed.
type PipelineError struct {
	Models  []string
	LastErr error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("all %d models exhausted: %v", len(e.Models), e.LastErr)
}

func (e *PipelineError) Unwrap() error { return e.LastErr }
