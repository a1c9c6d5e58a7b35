package util

import (
	"context"

	"github.com/sorintlab/errors"
)

func ContextCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return errors.Is(ctx.Err(), context.Canceled)
	default:
		return false
	}
}
