package pipeline

import (
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Write steps, in the order persist runs them.
const (
	stepTransactions = "transactions"
	stepScorecards   = "scorecards"
	stepGraph        = "graph"
)

const maxPendingBatches = 128

// pendingBatch is everything needed to finish writing a batch.
type pendingBatch struct {
	txs    []*domain.Transaction
	delta  *graph.Delta
	result *domain.BatchResult
}

// pendingBatches holds unpersisted batches until they are retried. When
// full, the oldest batch is dropped.
type pendingBatches struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]*pendingBatch
}

func newPendingBatches(limit int) *pendingBatches {
	return &pendingBatches{
		limit: limit,
		byID:  make(map[string]*pendingBatch),
	}
}

func (p *pendingBatches) put(b *pendingBatch) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := b.result.BatchID
	if _, ok := p.byID[id]; !ok {
		p.order = append(p.order, id)
	}
	p.byID[id] = b

	for len(p.order) > p.limit {
		delete(p.byID, p.order[0])
		p.order = p.order[1:]
	}
}

// take removes and returns a batch, so two retries never write it twice.
func (p *pendingBatches) take(id string) (*pendingBatch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	delete(p.byID, id)
	for i, queued := range p.order {
		if queued == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return b, true
}
