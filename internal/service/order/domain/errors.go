// internal/service/order/domain/errors.go
package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrUpstreamUnavailable 存储或消息中间件不可达
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// TransitionError 携带被拒绝的流转细节，errors.Is(err, ErrInvalidStateTransition) 为真
type TransitionError struct {
	OrderID int64
	Trigger Trigger
	From    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %d: %s not allowed in status %s", e.OrderID, e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// NotFoundError 携带查找键
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("order %s not found", e.Key) }

func (e *NotFoundError) Unwrap() error { return ErrOrderNotFound }

// Unavailable 把底层驱动错误包装为 ErrUpstreamUnavailable，保留原始错误信息
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return &upstreamError{op: op, cause: err}
}

type upstreamError struct {
	op    string
	cause error
}

func (e *upstreamError) Error() string { return e.op + ": " + e.cause.Error() }

func (e *upstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

func (e *upstreamError) Unwrap() error { return e.cause }
