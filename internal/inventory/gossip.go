package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/meshroute/balancer/internal/model"
	"go.uber.org/zap"
)

// nodeMeta is the JSON payload each member gossips in its node metadata.
// It carries the identity and declared resource snapshot the engine needs
// to seed the weight model before the first probe cycle.
type nodeMeta struct {
	ID        string                `json:"id"`
	Address   string                `json:"address"`
	Resources model.ResourceMetrics `json:"resources"`
}

// GossipProvider discovers the node inventory through cluster membership
type GossipProvider struct {
	config     *GossipConfig
	memberlist *memberlist.Memberlist
	local      nodeMeta
	mu         sync.RWMutex
	logger     *zap.Logger
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	NodeName       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
}

// NewGossipProvider creates a gossip-backed inventory provider and joins
// the configured seed nodes
func NewGossipProvider(cfg *GossipConfig, logger *zap.Logger) (*GossipProvider, error) {
	gp := &GossipProvider{
		config: cfg,
		logger: logger,
		local: nodeMeta{
			ID: cfg.NodeName,
		},
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	mlConfig.BindPort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	mlConfig.Delegate = gp
	mlConfig.Events = &gossipEventDelegate{provider: gp}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	gp.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return gp, nil
}

// ListNodes implements Provider. Members other than the balancer itself
// are reported as candidate backends; resource snapshots come from the
// gossiped metadata.
func (p *GossipProvider) ListNodes(ctx context.Context) ([]*model.Node, error) {
	members := p.memberlist.Members()

	nodes := make([]*model.Node, 0, len(members))
	for _, m := range members {
		if m.Name == p.config.NodeName {
			continue
		}

		node := &model.Node{
			ID:      m.Name,
			Address: m.Address(),
			Status:  model.NodeStatusActive,
		}

		var meta nodeMeta
		if len(m.Meta) > 0 {
			if err := json.Unmarshal(m.Meta, &meta); err != nil {
				p.logger.Warn("Undecodable node metadata",
					zap.String("node_id", m.Name),
					zap.Error(err))
			} else {
				if meta.Address != "" {
					node.Address = meta.Address
				}
				node.Resources = meta.Resources
			}
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// Shutdown leaves the cluster and stops gossiping
func (p *GossipProvider) Shutdown() error {
	return p.memberlist.Shutdown()
}

// NodeMeta implements memberlist.Delegate
func (p *GossipProvider) NodeMeta(limit int) []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data, _ := json.Marshal(p.local)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (p *GossipProvider) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate
func (p *GossipProvider) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (p *GossipProvider) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (p *GossipProvider) MergeRemoteState(buf []byte, join bool) {}

// gossipEventDelegate handles memberlist events
type gossipEventDelegate struct {
	provider *GossipProvider
}

// NotifyJoin is called when a node joins
func (d *gossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.provider.logger.Info("Node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", node.Addr.String()))
}

// NotifyLeave is called when a node leaves
func (d *gossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.provider.logger.Info("Node left",
		zap.String("node_id", node.Name))
}

// NotifyUpdate is called when a node is updated
func (d *gossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.provider.logger.Debug("Node updated",
		zap.String("node_id", node.Name))
}
