package service

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/meshroute/balancer/internal/metrics"
	"github.com/meshroute/balancer/internal/model"
	"go.uber.org/zap"
)

// ErrNoAvailableNodes is returned when selection finds no eligible node.
// It is surfaced to the caller, never retried internally.
var ErrNoAvailableNodes = errors.New("no available nodes")

// Weight model coefficients. Each factor is clamped to [0,1] before
// combination so no single signal can dominate.
const (
	healthWeight  = 0.30
	cpuWeight     = 0.25
	memoryWeight  = 0.25
	networkWeight = 0.10
	loadWeight    = 0.10
)

// DistributorService picks a backend node per unit of work using weighted
// random sampling over the current weight map, tracks live connection
// counts, and redistributes load away from failed nodes. The weight map
// is swapped wholesale on recomputation so readers never observe a
// partially updated set.
type DistributorService struct {
	mu          sync.Mutex
	weights     map[string]float64
	connections map[string]int64
	rrCursor    int

	rng            *rand.Rand
	minHealthScore float64
	maxConnections int

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDistributorService creates a new distributor. seed = 0 seeds the
// random source from the clock; any other value gives a reproducible
// selection sequence.
func NewDistributorService(minHealthScore float64, maxConnections int, seed int64, m *metrics.Metrics, logger *zap.Logger) *DistributorService {
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DistributorService{
		weights:        make(map[string]float64),
		connections:    make(map[string]int64),
		rng:            rand.New(rand.NewSource(seed)),
		minHealthScore: minHealthScore,
		maxConnections: maxConnections,
		metrics:        m,
		logger:         logger,
	}
}

// UpdateWeights recomputes and stores a weight for every node in the
// given set. Nodes no longer present are purged from weight and
// connection tracking so no dangling state survives inventory changes.
func (s *DistributorService) UpdateWeights(nodes []*model.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]float64, len(nodes))
	for _, node := range nodes {
		fresh[node.ID] = s.weightOf(node, s.connections[node.ID])
	}

	for id := range s.connections {
		if _, ok := fresh[id]; !ok {
			delete(s.connections, id)
			s.metrics.RemoveNode(id)
		}
	}

	s.weights = fresh

	s.logger.Debug("Weights recomputed", zap.Int("nodes", len(fresh)))
}

// weightOf combines five normalized factors into a routing weight.
// Callers hold s.mu.
func (s *DistributorService) weightOf(node *model.Node, conns int64) float64 {
	health := clamp01(node.HealthScore / 100)
	cpu := clamp01(1 - node.Resources.CPUUsagePct/100)
	mem := clamp01(1 - node.Resources.MemUsagePct/100)
	network := clamp01(1 - node.Resources.NetworkLatencyMs/1000)
	load := clamp01(1 - float64(conns)/float64(s.maxConnections))

	w := healthWeight*health + cpuWeight*cpu + memoryWeight*mem +
		networkWeight*network + loadWeight*load
	if w < 0 {
		return 0
	}
	return w
}

// Distribute selects one node from the candidates. Only nodes with
// status active and health score above the eligibility gate are
// considered. Selection draws a uniform value in [0, totalWeight) and
// walks the weight list; when the stored weights sum to zero it falls
// back to round-robin over the eligible set so progress is guaranteed
// even when the scoring model collapses. The chosen node's connection
// count is incremented before returning; callers report completion via
// Release.
func (s *DistributorService) Distribute(candidates []*model.Node) (*model.Node, error) {
	s.mu.Lock()

	eligible := make([]*model.Node, 0, len(candidates))
	for _, node := range candidates {
		if node.Status == model.NodeStatusActive && node.HealthScore > s.minHealthScore {
			eligible = append(eligible, node)
		}
	}
	if len(eligible) == 0 {
		s.mu.Unlock()
		s.metrics.RecordSelectionError()
		return nil, ErrNoAvailableNodes
	}

	// Deterministic walk order regardless of caller's slice order
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	total := 0.0
	for _, node := range eligible {
		total += s.weights[node.ID]
	}

	var chosen *model.Node
	if total <= 0 {
		chosen = eligible[s.rrCursor%len(eligible)]
		s.rrCursor++
	} else {
		remainder := s.rng.Float64() * total
		for _, node := range eligible {
			remainder -= s.weights[node.ID]
			if remainder <= 0 {
				chosen = node
				break
			}
		}
		if chosen == nil {
			// Floating point residue; the walk exhausted the list
			chosen = eligible[len(eligible)-1]
		}
	}

	s.connections[chosen.ID]++
	count := s.connections[chosen.ID]
	s.mu.Unlock()

	s.metrics.RecordSelection(chosen.ID)
	s.metrics.UpdateConnections(chosen.ID, count)

	return chosen, nil
}

// Release reports completion of a unit of work, decrementing the node's
// live connection count
func (s *DistributorService) Release(nodeID string) {
	s.mu.Lock()
	if s.connections[nodeID] > 0 {
		s.connections[nodeID]--
	}
	count := s.connections[nodeID]
	s.mu.Unlock()

	s.metrics.UpdateConnections(nodeID, count)
}

// HandleFailure removes the failed node from weight and connection
// tracking and spreads its outstanding connections evenly across the
// survivors with ceiling rounding. Exhaustion (no survivors) yields a
// failed result, not an error. Redistribution deliberately ignores
// health scores; the next weight recomputation corrects any imbalance.
func (s *DistributorService) HandleFailure(nodeID string) *model.FailoverResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	failedConns := s.connections[nodeID]
	delete(s.connections, nodeID)
	delete(s.weights, nodeID)
	s.metrics.RemoveNode(nodeID)

	survivors := make([]string, 0, len(s.weights))
	for id := range s.weights {
		survivors = append(survivors, id)
	}
	sort.Strings(survivors)

	result := &model.FailoverResult{
		FailedNodeID:       nodeID,
		RedistributedCount: failedConns,
		ActiveNodes:        survivors,
	}

	if len(survivors) == 0 {
		result.Success = false
		result.Error = "no remaining nodes to absorb redistributed load"
		result.LoadDistribution = map[string]float64{}
		s.logger.Error("Failover exhausted",
			zap.String("node_id", nodeID),
			zap.Int64("stranded_connections", failedConns))
		return result
	}

	if failedConns > 0 {
		share := (failedConns + int64(len(survivors)) - 1) / int64(len(survivors))
		for _, id := range survivors {
			s.connections[id] += share
			s.metrics.UpdateConnections(id, s.connections[id])
		}
	}

	result.Success = true
	result.LoadDistribution = s.loadDistributionLocked()
	s.metrics.RecordFailover(failedConns)

	s.logger.Info("Failover handled",
		zap.String("node_id", nodeID),
		zap.Int64("redistributed", failedConns),
		zap.Int("survivors", len(survivors)))

	return result
}

// LoadDistribution returns each tracked node's share of live connections
// as a percentage
func (s *DistributorService) LoadDistribution() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDistributionLocked()
}

func (s *DistributorService) loadDistributionLocked() map[string]float64 {
	dist := make(map[string]float64, len(s.weights))
	var total int64
	for id := range s.weights {
		total += s.connections[id]
	}
	for id := range s.weights {
		if total == 0 {
			dist[id] = 0
		} else {
			dist[id] = float64(s.connections[id]) / float64(total) * 100
		}
	}
	return dist
}

// Connections returns the live connection count for a node
func (s *DistributorService) Connections(nodeID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[nodeID]
}

// ResetConnections zeroes all connection counts. Administrative surface
// only; normal operation never resets.
func (s *DistributorService) ResetConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.connections {
		s.connections[id] = 0
		s.metrics.UpdateConnections(id, 0)
	}
	s.logger.Info("Connection counters reset")
}

// Reconfigure applies runtime configuration changes
func (s *DistributorService) Reconfigure(minHealthScore float64, maxConnections int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minHealthScore = minHealthScore
	if maxConnections > 0 {
		s.maxConnections = maxConnections
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
