package probe

import (
	"context"
	"sync"
	"time"

	"github.com/meshroute/balancer/internal/model"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerProber wraps another prober with a per-node circuit breaker. A
// node failing several probes in a row is fast-failed while the breaker
// is open instead of being re-probed with the full timeout every cycle.
// An open breaker still surfaces as a probe failure to the monitor.
type BreakerProber struct {
	inner       Prober
	maxFailures uint32
	openTimeout time.Duration
	breakers    map[string]*gobreaker.CircuitBreaker
	mu          sync.Mutex
	logger      *zap.Logger
}

// NewBreakerProber creates a breaker-wrapped prober. The breaker trips
// after maxFailures consecutive failures and half-opens after openTimeout.
func NewBreakerProber(inner Prober, maxFailures uint32, openTimeout time.Duration, logger *zap.Logger) *BreakerProber {
	return &BreakerProber{
		inner:       inner,
		maxFailures: maxFailures,
		openTimeout: openTimeout,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
		logger:      logger,
	}
}

// Probe implements Prober
func (p *BreakerProber) Probe(ctx context.Context, node *model.Node) (*Result, error) {
	cb := p.breakerFor(node.ID)

	res, err := cb.Execute(func() (interface{}, error) {
		result, err := p.inner.Probe(ctx, node)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return res.(*Result), nil
}

// breakerFor returns the breaker for a node, creating it on first use
func (p *BreakerProber) breakerFor(nodeID string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[nodeID]; ok {
		return cb
	}

	maxFailures := p.maxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "probe-" + nodeID,
		Timeout: p.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("Probe breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	p.breakers[nodeID] = cb

	return cb
}
