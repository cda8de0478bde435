package auction

import (
	"fmt"

	"github.com/pkg/errors"
)

// 校验类错误：创建阶段同步拒绝，不进入状态机。
var (
	ErrInvalidInterval     = errors.New("interval must be a positive number of minutes")
	ErrInvalidIncrement    = errors.New("discount increment must be in (0,100]")
	ErrInvalidDiscount     = errors.New("discount percent must be in [0,100]")
	ErrInvalidStartMode    = errors.New("start mode must be immediate or scheduled")
	ErrInvalidScheduleTime = errors.New("malformed schedule time")
	ErrUnknownTimezone     = errors.New("unknown timezone")
)

var (
	ErrNoEligibleProducts = errors.New("no eligible products in catalog")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidInterval, ErrInvalidIncrement, ErrInvalidDiscount,
		ErrInvalidStartMode, ErrInvalidScheduleTime, ErrUnknownTimezone,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// catalogUnavailable 同时保留哨兵错误与底层 *catalog.APIError，errors.Is / errors.As 均可命中。
func catalogUnavailable(cause error) error {
	return fmt.Errorf("%w: %w", ErrCatalogUnavailable, cause)
}
