package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/digkill/productshot/internal/rules"
)

var (
	ErrValidation    = errors.New("invalid generation request")
	ErrRunInProgress = errors.New("a generation run is already in progress for this user")
)

// ContentBlockedError is returned when the product text hits a ban pattern.
// Retrying the same text cannot succeed.
type ContentBlockedError struct {
	Hits []rules.BanHit
}

func (e *ContentBlockedError) Error() string {
	return "content blocked: " + strings.Join(rules.Classes(e.Hits), ", ")
}

// QuotaExceededError is returned when the batch does not fit in today's allowance.
type QuotaExceededError struct {
	Remaining int
	Requested int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded: %d remaining, %d requested", e.Remaining, e.Requested)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
