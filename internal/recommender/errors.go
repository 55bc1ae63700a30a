package recommender

import (
	"context"
	"errors"
	"fmt"

	"github.com/temcen/marketrec/internal/similarity"
)

// ErrInvalidInput marks malformed input handed to the engines.
var ErrInvalidInput = similarity.ErrInvalidInput

// ErrUpstreamUnavailable marks a failure of an order or catalog data source.
var ErrUpstreamUnavailable = errors.New("upstream data unavailable")

// UpstreamError carries the failing data source alongside the cause.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUpstreamUnavailable, e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Upstream wraps err as an UpstreamError unless it already is one. Context
// cancellation passes through untouched.
func Upstream(source string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamError{Source: source, Err: err}
}
