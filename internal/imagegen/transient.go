package imagegen

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/genai"
)

var transientMarkers = []string{
	"timeout", "timed out", "deadline exceeded",
	"rate limit", "resource_exhausted", "resource exhausted", "too many requests",
	"unavailable", "overloaded", "internal error",
	"429", "500", "502", "503", "504",
}

// IsTransient reports whether err is worth retrying: timeouts, rate limits and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var status *StatusError
	if errors.As(err, &status) {
		return retryableCode(status.Code)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return retryableCode(apiErrPtr.Code)
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func retryableCode(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}
