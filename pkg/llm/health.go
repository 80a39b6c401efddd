package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/vellum-io/vellum/pkg/kind"
)

type endpointState struct {
	failures    int
	lastFailure time.Time
}

// Pool rotates over a backend's endpoints, skipping unhealthy ones. An
// endpoint is eligible while its failure count is under the threshold, or
// again once the cooldown has elapsed since its last failure. Health state
// is per-process; sibling workers keep independent views.
type Pool struct {
	mu        sync.Mutex
	endpoints []string
	state     []endpointState
	next      int
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewPool builds a pool over the given endpoints. SDK-backed backends with
// no URLs get a single unnamed endpoint so health accounting still applies
// to the backend as a unit.
func NewPool(endpoints []string, threshold int, cooldown time.Duration) *Pool {
	if len(endpoints) == 0 {
		endpoints = []string{""}
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &Pool{
		endpoints: endpoints,
		state:     make([]endpointState, len(endpoints)),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Next returns the next eligible endpoint in rotation.
func (p *Pool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.endpoints); i++ {
		idx := (p.next + i) % len(p.endpoints)
		s := p.state[idx]
		if s.failures < p.threshold || now.Sub(s.lastFailure) >= p.cooldown {
			p.next = (idx + 1) % len(p.endpoints)
			return p.endpoints[idx], nil
		}
	}
	return "", fmt.Errorf("no healthy endpoint among %d: %w", len(p.endpoints), kind.ErrBackendUnavailable)
}

// ReportSuccess resets the endpoint's failure count.
func (p *Pool) ReportSuccess(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx := p.index(endpoint); idx >= 0 {
		p.state[idx] = endpointState{}
	}
}

// ReportFailure increments the endpoint's failure count and stamps the
// failure time, which starts (or restarts) its cooldown window.
func (p *Pool) ReportFailure(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx := p.index(endpoint); idx >= 0 {
		p.state[idx].failures++
		p.state[idx].lastFailure = p.now()
	}
}

func (p *Pool) index(endpoint string) int {
	for i, e := range p.endpoints {
		if e == endpoint {
			return i
		}
	}
	return -1
}
