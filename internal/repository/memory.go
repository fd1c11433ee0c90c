package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MemoryRepository is an in-process domain.Repository.
// It backs the "memory" driver and is used as a test double.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	scorecards   map[string][]*domain.Scorecard
	cardIDs      map[string]struct{}
	nodes        map[string]*domain.Node
	edges        map[edgeKey]*domain.Edge
	profiles     map[string]*domain.PartyProfile
	rules        map[string]*domain.RuleDefinition
}

type edgeKey struct {
	from, to string
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[string]*domain.Transaction),
		scorecards:   make(map[string][]*domain.Scorecard),
		cardIDs:      make(map[string]struct{}),
		nodes:        make(map[string]*domain.Node),
		edges:        make(map[edgeKey]*domain.Edge),
		profiles:     make(map[string]*domain.PartyProfile),
		rules:        make(map[string]*domain.RuleDefinition),
	}
}

func (m *MemoryRepository) UpsertTransactions(_ context.Context, txs []*domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if _, ok := m.transactions[tx.ID]; ok {
			continue
		}
		cp := *tx
		m.transactions[tx.ID] = &cp
	}
	return nil
}

func (m *MemoryRepository) GetTransaction(_ context.Context, txID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryRepository) QueryRecentByParty(_ context.Context, partyID string, since, until time.Time) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range m.transactions {
		if tx.FromParty != partyID && tx.ToParty != partyID {
			continue
		}
		if tx.Timestamp.Before(since) || tx.Timestamp.After(until) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) UpsertScorecards(_ context.Context, cards []*domain.Scorecard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cards {
		if _, ok := m.cardIDs[c.ID]; ok {
			continue
		}
		m.cardIDs[c.ID] = struct{}{}
		m.scorecards[c.TransactionID] = append(m.scorecards[c.TransactionID], c)
	}
	return nil
}

func (m *MemoryRepository) ListScorecards(_ context.Context, txID string) ([]*domain.Scorecard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Scorecard(nil), m.scorecards[txID]...), nil
}

func (m *MemoryRepository) UpsertNodes(_ context.Context, nodes []*domain.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeNodes(nodes)
	return nil
}

func (m *MemoryRepository) UpsertEdges(_ context.Context, edges []*domain.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeEdges(edges)
	return nil
}

func (m *MemoryRepository) UpsertGraph(_ context.Context, nodes []*domain.Node, edges []*domain.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeNodes(nodes)
	m.mergeEdges(edges)
	return nil
}

func (m *MemoryRepository) mergeNodes(nodes []*domain.Node) {
	for _, n := range nodes {
		if cur, ok := m.nodes[n.PartyID]; ok {
			cur.Merge(n)
			continue
		}
		cp := *n
		m.nodes[n.PartyID] = &cp
	}
}

func (m *MemoryRepository) mergeEdges(edges []*domain.Edge) {
	for _, e := range edges {
		k := edgeKey{e.FromParty, e.ToParty}
		if cur, ok := m.edges[k]; ok {
			cur.Merge(e)
			continue
		}
		cp := *e
		m.edges[k] = &cp
	}
}

func (m *MemoryRepository) GetNode(_ context.Context, partyID string) (*domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[partyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MemoryRepository) GetEdge(_ context.Context, fromParty, toParty string) (*domain.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[edgeKey{fromParty, toParty}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) ListEdgesFrom(_ context.Context, partyID string) ([]*domain.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Edge
	for k, e := range m.edges {
		if k.from == partyID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToParty < out[j].ToParty })
	return out, nil
}

func (m *MemoryRepository) SaveProfile(_ context.Context, p *domain.PartyProfile) error {
	if p == nil || p.PartyID == "" {
		return fmt.Errorf("%w: partyId is required", domain.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	m.profiles[p.PartyID] = &cp
	return nil
}

func (m *MemoryRepository) GetProfile(_ context.Context, partyID string) (*domain.PartyProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[partyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) SaveRuleDefinition(_ context.Context, def *domain.RuleDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *def
	now := time.Now().UTC()
	if prev, ok := m.rules[def.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.rules[def.ID] = &cp
	return nil
}

func (m *MemoryRepository) ListRuleDefinitions(_ context.Context) ([]*domain.RuleDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.RuleDefinition, 0, len(m.rules))
	for _, d := range m.rules {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }
