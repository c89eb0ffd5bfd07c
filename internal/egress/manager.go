package egress

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/state"
)

// Config tunes pool selection and health surveillance.
type Config struct {
	// SuccessRateFloor is the minimum overall success rate a point
	// needs to stay selectable.
	SuccessRateFloor float64
	// QuarantineThreshold is the consecutive failure count that pulls
	// a point out of rotation until a probe succeeds.
	QuarantineThreshold int
	// SessionTTL is how long an idle session survives.
	SessionTTL time.Duration
	// ProbeTarget is the URL health probes are issued against.
	ProbeTarget string
}

// DefaultConfig returns the tuning the control plane ships with.
func DefaultConfig() Config {
	return Config{
		SuccessRateFloor:    0.7,
		QuarantineThreshold: 3,
		SessionTTL:          24 * time.Hour,
		ProbeTarget:         "https://httpbin.org/ip",
	}
}

// Manager owns the egress pool: registration, optimal selection,
// result accounting, session tracking and health surveillance.
type Manager struct {
	mu           sync.RWMutex
	points       map[string]*Point
	requirements map[string]domain.EgressRequirements
	sessions     *sessionStore
	scorer       Scorer
	prober       Prober
	cfg          Config
	log          logger.Interface
}

// NewManager builds an empty pool with the historical scorer and no
// prober. Wire a Prober before running health sweeps.
func NewManager(cfg Config, log logger.Interface) *Manager {
	if cfg.SuccessRateFloor <= 0 {
		cfg.SuccessRateFloor = 0.7
	}
	if cfg.QuarantineThreshold <= 0 {
		cfg.QuarantineThreshold = 3
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Manager{
		points:       make(map[string]*Point),
		requirements: make(map[string]domain.EgressRequirements),
		sessions:     newSessionStore(cfg.SessionTTL),
		scorer:       HistoricalScorer{},
		cfg:          cfg,
		log:          log.WithComponent("egress"),
	}
}

// SetScorer replaces the success predictor used during selection.
func (m *Manager) SetScorer(s Scorer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s != nil {
		m.scorer = s
	}
}

// SetProber wires the connectivity prober used by HealthCheckAll.
func (m *Manager) SetProber(p Prober) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prober = p
}

// SetSourceRequirements declares the egress constraints of one source.
func (m *Manager) SetSourceRequirements(source string, req domain.EgressRequirements) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requirements[source] = req
}

// Register adds a point to the pool. Fields the caller left zero get
// optimistic defaults so a new point is tried at least once.
func (m *Manager) Register(p *Point) error {
	if p == nil || p.ID == "" || p.Address == "" {
		return fmt.Errorf("registering egress point: %w", ErrInvalidPoint)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.points[p.ID]; exists {
		return fmt.Errorf("registering egress point %s: %w", p.ID, ErrDuplicateEgress)
	}

	registered := p.clone()
	registered.normalize()
	m.points[p.ID] = registered

	m.log.Info("egress point registered",
		"egress_id", registered.ID,
		"address", registered.Address,
		"geo", registered.Geo,
		"residential", registered.Residential,
		"capacity", registered.Capacity,
	)
	return nil
}

// Get returns a copy of one point's current metrics.
func (m *Manager) Get(egressID string) (*Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[egressID]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Points returns a copy of the whole pool, sorted by id.
func (m *Manager) Points() []*Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Point, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetOptimalEgress picks the best available point for a source. The
// pool is filtered for availability first, each survivor is scored,
// and the final pick is randomized across the top three so load
// spreads instead of piling onto the single best point. The chosen
// point's load slot is held until RecordResult releases it.
func (m *Manager) GetOptimalEgress(source, category string, priority int) (*Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	eligible := m.eligible(source)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("selecting egress for %s: %w", source, ErrNoEgressAvailable)
	}

	now := time.Now()
	ranked := make([]candidate, 0, len(eligible))
	for _, p := range eligible {
		ranked = append(ranked, candidate{point: p, score: m.selectionScore(p, source, category, now)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].point.ID < ranked[j].point.ID
	})

	chosen := pickTopCandidate(ranked, rand.Float64())
	chosen.point.CurrentLoad++
	chosen.point.LastUsed = now
	session := m.sessions.open(chosen.point.ID, source)

	m.log.Debug("egress selected",
		"egress_id", chosen.point.ID,
		"source", source,
		"category", category,
		"priority", priority,
		"score", chosen.score,
		"candidates", len(ranked),
		"session_id", session.ID,
	)
	return chosen.point.clone(), nil
}

// eligible filters the pool for one source. Called with the manager
// lock held.
func (m *Manager) eligible(source string) []*Point {
	req, constrained := m.requirements[source]

	var out []*Point
	for _, p := range m.points {
		if p.BlockedFor(source) {
			continue
		}
		if p.SuccessRate < m.cfg.SuccessRateFloor {
			continue
		}
		if p.ConsecutiveFailures >= m.cfg.QuarantineThreshold {
			continue
		}
		if !p.HasCapacity() {
			continue
		}
		if constrained {
			if req.Residential && !p.Residential {
				continue
			}
			if req.StrictGeo && req.Geo != "" && p.Geo != req.Geo {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// ReleaseSlot frees the load slot held by a prior GetOptimalEgress
// without recording an outcome. Used when a selected point never sent
// a request, such as a dispatch that found no free worker. The pair's
// session is left alone; it recorded nothing and idles out on its TTL.
func (m *Manager) ReleaseSlot(egressID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.points[egressID]
	if !ok {
		return fmt.Errorf("releasing slot for %s: %w", egressID, ErrUnknownEgress)
	}
	if p.CurrentLoad > 0 {
		p.CurrentLoad--
	}
	return nil
}

// RecordResult folds one request outcome into the point's metrics and
// the pair's session, releases the load slot, and recomputes the
// health score. A blocking error reason puts the source on the point's
// blocked set; a later success for the same source clears it.
func (m *Manager) RecordResult(egressID, source string, success bool, responseTime time.Duration, errorReason string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.points[egressID]
	if !ok {
		return fmt.Errorf("recording result for %s: %w", egressID, ErrUnknownEgress)
	}

	now := time.Now()
	p.TotalRequests++
	if p.CurrentLoad > 0 {
		p.CurrentLoad--
	}

	if success {
		p.SuccessfulRequests++
		t := now
		p.LastSuccess = &t
		p.ConsecutiveFailures = 0
		delete(p.BlockedBy, source)
	} else {
		t := now
		p.LastFailure = &t
		p.ConsecutiveFailures++
		if errorReason != "" {
			p.FailureReasons = append(p.FailureReasons, errorReason)
			if len(p.FailureReasons) > maxFailureReasons {
				p.FailureReasons = p.FailureReasons[len(p.FailureReasons)-maxFailureReasons:]
			}
		}
		if isBlockingReason(errorReason) {
			p.BlockedBy[source] = true
			m.log.Warn("egress flagged as blocked",
				"egress_id", egressID,
				"source", source,
				"reason", errorReason,
			)
		}
	}

	p.SuccessRate = float64(p.SuccessfulRequests) / float64(p.TotalRequests)

	if success && responseTime > 0 {
		n := float64(p.SuccessfulRequests)
		if n > 1 {
			p.AvgResponseTime = (p.AvgResponseTime*(n-1) + responseTime.Seconds()) / n
		} else {
			p.AvgResponseTime = responseTime.Seconds()
		}
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	p.PerSource[source] = (1-perSourceAlpha)*p.PerSource[source] + perSourceAlpha*outcome

	p.HealthScore = healthScore(p, now)
	m.sessions.record(egressID, source, success, responseTime, bytes)
	return nil
}

// SaveTo checkpoints the pool metrics through the state store.
func (m *Manager) SaveTo(ctx context.Context, store *state.Store) error {
	m.mu.RLock()
	snapshot := make(map[string]*Point, len(m.points))
	for id, p := range m.points {
		snapshot[id] = p.clone()
	}
	m.mu.RUnlock()

	if err := store.Persist(ctx, state.KeyEgressPool, snapshot); err != nil {
		return fmt.Errorf("saving egress pool: %w", err)
	}
	return nil
}

// LoadFrom restores pool metrics saved by an earlier run. Points that
// are already registered keep their configured identity fields and
// adopt the saved metrics. Load slots are not restored because
// sessions do not survive a restart.
func (m *Manager) LoadFrom(ctx context.Context, store *state.Store) error {
	var snapshot map[string]*Point
	if err := store.Load(ctx, state.KeyEgressPool, &snapshot); err != nil {
		return fmt.Errorf("loading egress pool: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for id, saved := range snapshot {
		if saved == nil || id == "" {
			continue
		}
		saved.CurrentLoad = 0
		if existing, ok := m.points[id]; ok {
			saved.Address = existing.Address
			saved.Protocol = existing.Protocol
			saved.Geo = existing.Geo
			saved.Residential = existing.Residential
			saved.Capacity = existing.Capacity
		}
		saved.normalize()
		m.points[id] = saved
		restored++
	}

	m.log.Info("egress pool restored", "points", restored)
	return nil
}
