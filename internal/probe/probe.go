package probe

import (
	"context"
	"time"

	"github.com/meshroute/balancer/internal/model"
)

// Result holds the outcome of a single node probe
type Result struct {
	Healthy      bool
	ResponseTime time.Duration
	Metrics      model.ResourceMetrics
	Dependencies map[string]string
}

// Prober checks whether a backend node is healthy. Implementations must
// respect the context deadline; the monitor bounds every probe with a
// timeout and treats a returned error as a probe failure, never as fatal.
type Prober interface {
	Probe(ctx context.Context, node *model.Node) (*Result, error)
}

// ProberFunc adapts a plain function to the Prober interface
type ProberFunc func(ctx context.Context, node *model.Node) (*Result, error)

// Probe implements Prober
func (f ProberFunc) Probe(ctx context.Context, node *model.Node) (*Result, error) {
	return f(ctx, node)
}
