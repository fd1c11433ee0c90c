// Package graph maintains the party relationship graph.
//
// A batch is first folded into a Delta without touching storage. The
// delta is then merged into the stored graph with additive upserts, so a
// batch's totals add to whatever earlier batches stored.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Store is the part of the repository the aggregator writes to.
// UpsertGraph must apply nodes and edges together or not at all.
type Store interface {
	UpsertGraph(ctx context.Context, nodes []*domain.Node, edges []*domain.Edge) error
}

// Delta is the per-batch contribution to the graph.
// Nodes are sorted by party id and edges by (from, to).
type Delta struct {
	Nodes []*domain.Node
	Edges []*domain.Edge
}

// Empty reports whether the delta carries nothing to merge.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Nodes) == 0 && len(d.Edges) == 0)
}

type pair struct {
	from, to string
}

// Fold reduces transactions into a Delta. It is pure.
// Both parties of a transaction gain its amount and one count; a
// self-transfer touches its node once.
func Fold(txs []*domain.Transaction) *Delta {
	nodes := make(map[string]*domain.Node)
	edges := make(map[pair]*domain.Edge)

	touch := func(party string, tx *domain.Transaction) {
		n, ok := nodes[party]
		if !ok {
			nodes[party] = &domain.Node{
				PartyID:          party,
				TotalVolume:      tx.Amount,
				TransactionCount: 1,
				FirstSeen:        tx.Timestamp,
				LastSeen:         tx.Timestamp,
			}
			return
		}
		n.TotalVolume = n.TotalVolume.Add(tx.Amount)
		n.TransactionCount++
		if tx.Timestamp.Before(n.FirstSeen) {
			n.FirstSeen = tx.Timestamp
		}
		if tx.Timestamp.After(n.LastSeen) {
			n.LastSeen = tx.Timestamp
		}
	}

	for _, tx := range txs {
		touch(tx.FromParty, tx)
		if tx.ToParty != tx.FromParty {
			touch(tx.ToParty, tx)
		}

		k := pair{tx.FromParty, tx.ToParty}
		e, ok := edges[k]
		if !ok {
			edges[k] = &domain.Edge{
				FromParty:        tx.FromParty,
				ToParty:          tx.ToParty,
				TotalAmount:      tx.Amount,
				TransactionCount: 1,
				FirstTransaction: tx.Timestamp,
				LastTransaction:  tx.Timestamp,
			}
			continue
		}
		e.TotalAmount = e.TotalAmount.Add(tx.Amount)
		e.TransactionCount++
		if tx.Timestamp.Before(e.FirstTransaction) {
			e.FirstTransaction = tx.Timestamp
		}
		if tx.Timestamp.After(e.LastTransaction) {
			e.LastTransaction = tx.Timestamp
		}
	}

	d := &Delta{
		Nodes: make([]*domain.Node, 0, len(nodes)),
		Edges: make([]*domain.Edge, 0, len(edges)),
	}
	for _, n := range nodes {
		d.Nodes = append(d.Nodes, n)
	}
	for _, e := range edges {
		d.Edges = append(d.Edges, e)
	}
	sort.Slice(d.Nodes, func(i, j int) bool { return d.Nodes[i].PartyID < d.Nodes[j].PartyID })
	sort.Slice(d.Edges, func(i, j int) bool {
		if d.Edges[i].FromParty != d.Edges[j].FromParty {
			return d.Edges[i].FromParty < d.Edges[j].FromParty
		}
		return d.Edges[i].ToParty < d.Edges[j].ToParty
	})
	return d
}

// Aggregator merges deltas into a Store. Merges from one process are
// serialized; the store makes each key's update atomic.
type Aggregator struct {
	mu    sync.Mutex
	store Store
}

// NewAggregator creates an aggregator writing to store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Merge applies d to the store in a single write. A failed merge leaves
// the stored graph untouched, so the same delta can be merged again.
func (a *Aggregator) Merge(ctx context.Context, d *Delta) (domain.GraphDelta, error) {
	if d.Empty() {
		return domain.GraphDelta{Applied: true}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.UpsertGraph(ctx, d.Nodes, d.Edges); err != nil {
		return domain.GraphDelta{}, fmt.Errorf("merge graph: %w", err)
	}

	return domain.GraphDelta{
		NodesUpserted: len(d.Nodes),
		EdgesUpserted: len(d.Edges),
		Applied:       true,
	}, nil
}
