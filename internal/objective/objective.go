package objective

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"bnsearch/internal/network"
)

var tracer = otel.Tracer("bnsearch/internal/objective")

// Func scores a network. Implementations must not keep net past the call:
// the search mutates it in place afterwards.
type Func func(ctx context.Context, net *network.Network) (float64, error)

// WithTimeout bounds every call of fn. A zero or negative d returns fn as is.
func WithTimeout(fn Func, d time.Duration) Func {
	if d <= 0 {
		return fn
	}
	return func(ctx context.Context, net *network.Network) (float64, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx, net)
	}
}
