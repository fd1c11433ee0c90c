package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Node is a party vertex in the relationship graph.
// Nodes are upsert-only and accumulate monotonically.
type Node struct {
	PartyID          string          `json:"partyId"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	TransactionCount int64           `json:"transactionCount"`
	FirstSeen        time.Time       `json:"firstSeen"`
	LastSeen         time.Time       `json:"lastSeen"`
}

// Edge is a directed relationship from FromParty to ToParty.
type Edge struct {
	FromParty        string          `json:"fromParty"`
	ToParty          string          `json:"toParty"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int64           `json:"transactionCount"`
	FirstTransaction time.Time       `json:"firstTransaction"`
	LastTransaction  time.Time       `json:"lastTransaction"`
}

// GraphDelta summarizes what a batch merged into the graph.
type GraphDelta struct {
	NodesUpserted int  `json:"nodesUpserted"`
	EdgesUpserted int  `json:"edgesUpserted"`
	Applied       bool `json:"applied"`
}

// Merge adds a batch delta for the same party into n.
func (n *Node) Merge(delta *Node) {
	n.TotalVolume = n.TotalVolume.Add(delta.TotalVolume)
	n.TransactionCount += delta.TransactionCount
	if delta.FirstSeen.Before(n.FirstSeen) {
		n.FirstSeen = delta.FirstSeen
	}
	if delta.LastSeen.After(n.LastSeen) {
		n.LastSeen = delta.LastSeen
	}
}

// Merge adds a batch delta for the same party pair into e.
func (e *Edge) Merge(delta *Edge) {
	e.TotalAmount = e.TotalAmount.Add(delta.TotalAmount)
	e.TransactionCount += delta.TransactionCount
	if delta.FirstTransaction.Before(e.FirstTransaction) {
		e.FirstTransaction = delta.FirstTransaction
	}
	if delta.LastTransaction.After(e.LastTransaction) {
		e.LastTransaction = delta.LastTransaction
	}
}
