package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meshroute/balancer/internal/model"
	"go.uber.org/zap"
)

// HTTPProber probes a node's health endpoint over HTTP. The endpoint is
// expected to answer with a JSON body carrying status, a resource
// snapshot, and dependency states; a non-200 response or a status other
// than "healthy"/"ok"/"ready" marks the node unhealthy.
type HTTPProber struct {
	client *http.Client
	path   string
	logger *zap.Logger
}

// healthResponse is the wire shape of a node health endpoint reply
type healthResponse struct {
	Status       string                `json:"status"`
	Metrics      model.ResourceMetrics `json:"metrics"`
	Dependencies map[string]string     `json:"dependencies,omitempty"`
}

// NewHTTPProber creates a new HTTP prober
func NewHTTPProber(path string, logger *zap.Logger) *HTTPProber {
	return &HTTPProber{
		// Per-probe deadlines come from the caller's context; the client
		// itself only bounds connection reuse.
		client: &http.Client{},
		path:   path,
		logger: logger,
	}
}

// Probe implements Prober
func (p *HTTPProber) Probe(ctx context.Context, node *model.Node) (*Result, error) {
	url := fmt.Sprintf("http://%s%s", node.Address, p.path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{ResponseTime: elapsed}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		p.logger.Debug("Probe response body not decodable",
			zap.String("node_id", node.ID),
			zap.Error(err))
		// A reachable endpoint with an opaque body still counts by status code
		result.Healthy = resp.StatusCode == http.StatusOK
		return result, nil
	}

	result.Metrics = body.Metrics
	result.Dependencies = body.Dependencies
	result.Healthy = resp.StatusCode == http.StatusOK && isHealthyStatus(body.Status)

	return result, nil
}

func isHealthyStatus(status string) bool {
	switch status {
	case "healthy", "ok", "ready", "alive":
		return true
	default:
		return false
	}
}
