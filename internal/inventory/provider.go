package inventory

import (
	"context"
	"sync"

	"github.com/meshroute/balancer/internal/model"
)

// Provider supplies the current node inventory to the engine. Health
// scores and statuses on returned nodes are advisory; the health monitor
// owns both once a node is under management.
type Provider interface {
	ListNodes(ctx context.Context) ([]*model.Node, error)
}

// StaticProvider holds an administratively managed node set
type StaticProvider struct {
	mu    sync.RWMutex
	nodes map[string]*model.Node
}

// NewStaticProvider creates a provider seeded with the given nodes
func NewStaticProvider(nodes ...*model.Node) *StaticProvider {
	p := &StaticProvider{nodes: make(map[string]*model.Node)}
	for _, n := range nodes {
		p.nodes[n.ID] = n.Clone()
	}
	return p
}

// ListNodes implements Provider
func (p *StaticProvider) ListNodes(ctx context.Context) ([]*model.Node, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*model.Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n.Clone())
	}
	return out, nil
}

// Upsert registers a node or updates its declared resources
func (p *StaticProvider) Upsert(node *model.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[node.ID] = node.Clone()
}

// Remove drops a node from the inventory
func (p *StaticProvider) Remove(nodeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.nodes, nodeID)
}
