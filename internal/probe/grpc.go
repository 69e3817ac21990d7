package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshroute/balancer/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCProber probes nodes through the standard grpc.health.v1 protocol.
// Connections are cached per node address. The health protocol carries no
// resource snapshot, so Result.Metrics stays zero; resource data for gRPC
// fleets travels through the inventory provider instead.
type GRPCProber struct {
	service     string
	connections map[string]*grpc.ClientConn
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewGRPCProber creates a new gRPC health prober. service is the
// registered service name to check; empty checks overall server health.
func NewGRPCProber(service string, logger *zap.Logger) *GRPCProber {
	return &GRPCProber{
		service:     service,
		connections: make(map[string]*grpc.ClientConn),
		logger:      logger,
	}
}

// Probe implements Prober
func (p *GRPCProber) Probe(ctx context.Context, node *model.Node) (*Result, error) {
	conn, err := p.getConnection(node.Address)
	if err != nil {
		return nil, err
	}

	client := grpc_health_v1.NewHealthClient(conn)

	start := time.Now()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: p.service})
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("grpc health check failed: %w", err)
	}

	return &Result{
		Healthy:      resp.Status == grpc_health_v1.HealthCheckResponse_SERVING,
		ResponseTime: elapsed,
	}, nil
}

// getConnection returns a cached connection or dials a new one
func (p *GRPCProber) getConnection(address string) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, ok := p.connections[address]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check after acquiring write lock
	if conn, ok := p.connections[address]; ok {
		return conn, nil
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	p.connections[address] = conn
	p.logger.Debug("Opened probe connection", zap.String("address", address))

	return conn, nil
}

// Close closes all cached connections
func (p *GRPCProber) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for address, conn := range p.connections {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close probe connection",
				zap.String("address", address),
				zap.Error(err))
		}
	}
	p.connections = make(map[string]*grpc.ClientConn)
}
