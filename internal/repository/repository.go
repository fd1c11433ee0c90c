// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == "postgres" {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// UpsertTransactions inserts transactions; existing ids are left untouched.
func (r *SQLRepository) UpsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	query := r.rebind(`
		INSERT INTO transactions (
			id, external_id, type, from_party, to_party, amount, currency,
			occurred_at, created_at, origin_country, dest_country, channel
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range txs {
			if _, err := stmt.ExecContext(ctx,
				t.ID, t.ExternalID, t.Type, t.FromParty, t.ToParty,
				t.Amount.String(), t.Currency,
				toNanos(t.Timestamp), toNanos(t.CreatedAt),
				t.OriginCountry, t.DestCountry, t.Channel,
			); err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

const transactionColumns = `
	id, external_id, type, from_party, to_party, amount, currency,
	occurred_at, created_at, origin_country, dest_country, channel
`

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// QueryRecentByParty returns transactions sent or received by partyID in [since, until], newest first.
func (r *SQLRepository) QueryRecentByParty(ctx context.Context, partyID string, since, until time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (from_party = ? OR to_party = ?)
		  AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), partyID, partyID, toNanos(since), toNanos(until))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var occurred, created int64

	if err := row.Scan(
		&tx.ID, &tx.ExternalID, &tx.Type, &tx.FromParty, &tx.ToParty,
		&tx.Amount, &tx.Currency,
		&occurred, &created,
		&tx.OriginCountry, &tx.DestCountry, &tx.Channel,
	); err != nil {
		return nil, err
	}
	tx.Timestamp = fromNanos(occurred)
	tx.CreatedAt = fromNanos(created)
	return &tx, nil
}

// UpsertScorecards appends scorecards. Re-inserting the same id is a no-op.
func (r *SQLRepository) UpsertScorecards(ctx context.Context, cards []*domain.Scorecard) error {
	if len(cards) == 0 {
		return nil
	}

	query := r.rebind(`
		INSERT INTO scorecards (
			id, transaction_id, policy_score, advisory_score, final_score, strategy,
			tier, mandatory_flags, triggered_rules, due_by, rationale, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range cards {
			flags, err := json.Marshal(nonNil(c.MandatoryFlags))
			if err != nil {
				return err
			}
			triggered, err := json.Marshal(c.TriggeredRules)
			if err != nil {
				return err
			}

			var dueBy sql.NullInt64
			if c.DueBy != nil {
				dueBy = sql.NullInt64{Int64: toNanos(*c.DueBy), Valid: true}
			}

			if _, err := stmt.ExecContext(ctx,
				c.ID, c.TransactionID, c.PolicyScore, c.AdvisoryScore, c.FinalScore, c.Strategy,
				string(c.Tier), string(flags), string(triggered), dueBy, c.Rationale, toNanos(c.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert scorecard %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ListScorecards returns every scorecard of a transaction, oldest first.
func (r *SQLRepository) ListScorecards(ctx context.Context, txID string) ([]*domain.Scorecard, error) {
	query := `
		SELECT id, transaction_id, policy_score, advisory_score, final_score, strategy,
		       tier, mandatory_flags, triggered_rules, due_by, rationale, created_at
		FROM scorecards
		WHERE transaction_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*domain.Scorecard
	for rows.Next() {
		var c domain.Scorecard
		var tier, flags, triggered string
		var dueBy sql.NullInt64
		var created int64

		if err := rows.Scan(
			&c.ID, &c.TransactionID, &c.PolicyScore, &c.AdvisoryScore, &c.FinalScore, &c.Strategy,
			&tier, &flags, &triggered, &dueBy, &c.Rationale, &created,
		); err != nil {
			return nil, err
		}

		c.Tier = domain.Tier(tier)
		c.CreatedAt = fromNanos(created)
		if dueBy.Valid {
			d := fromNanos(dueBy.Int64)
			c.DueBy = &d
		}
		if err := json.Unmarshal([]byte(flags), &c.MandatoryFlags); err != nil {
			return nil, fmt.Errorf("failed to parse flags of scorecard %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(triggered), &c.TriggeredRules); err != nil {
			return nil, fmt.Errorf("failed to parse triggered rules of scorecard %s: %w", c.ID, err)
		}
		cards = append(cards, &c)
	}
	return cards, rows.Err()
}

// UpsertNodes adds node deltas to the stored aggregates.
func (r *SQLRepository) UpsertNodes(ctx context.Context, nodes []*domain.Node) error {
	return r.UpsertGraph(ctx, nodes, nil)
}

// UpsertEdges adds edge deltas to the stored aggregates.
func (r *SQLRepository) UpsertEdges(ctx context.Context, edges []*domain.Edge) error {
	return r.UpsertGraph(ctx, nil, edges)
}

// UpsertGraph adds node and edge deltas inside one transaction, so a
// failure leaves neither applied. Rows are written in key order so two
// concurrent merges lock keys in the same order.
func (r *SQLRepository) UpsertGraph(ctx context.Context, nodes []*domain.Node, edges []*domain.Edge) error {
	if len(nodes) == 0 && len(edges) == 0 {
		return nil
	}

	sortedNodes := append([]*domain.Node(nil), nodes...)
	sort.Slice(sortedNodes, func(i, j int) bool { return sortedNodes[i].PartyID < sortedNodes[j].PartyID })

	sortedEdges := append([]*domain.Edge(nil), edges...)
	sort.Slice(sortedEdges, func(i, j int) bool {
		if sortedEdges[i].FromParty != sortedEdges[j].FromParty {
			return sortedEdges[i].FromParty < sortedEdges[j].FromParty
		}
		return sortedEdges[i].ToParty < sortedEdges[j].ToParty
	})

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if r.driver == "postgres" {
			if err := r.addNodes(ctx, tx, sortedNodes); err != nil {
				return err
			}
			return r.addEdges(ctx, tx, sortedEdges)
		}
		if err := r.mergeNodes(ctx, tx, sortedNodes); err != nil {
			return err
		}
		return r.mergeEdges(ctx, tx, sortedEdges)
	})
}

// addNodes sums in the database. Only used where totals are NUMERIC.
func (r *SQLRepository) addNodes(ctx context.Context, tx *sql.Tx, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO graph_nodes (party_id, total_volume, transaction_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(party_id) DO UPDATE SET
			total_volume = graph_nodes.total_volume + excluded.total_volume,
			transaction_count = graph_nodes.transaction_count + excluded.transaction_count,
			first_seen = CASE WHEN excluded.first_seen < graph_nodes.first_seen
				THEN excluded.first_seen ELSE graph_nodes.first_seen END,
			last_seen = CASE WHEN excluded.last_seen > graph_nodes.last_seen
				THEN excluded.last_seen ELSE graph_nodes.last_seen END
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx,
			n.PartyID, n.TotalVolume.String(), n.TransactionCount,
			toNanos(n.FirstSeen), toNanos(n.LastSeen),
		); err != nil {
			return fmt.Errorf("upsert node %s: %w", n.PartyID, err)
		}
	}
	return nil
}

func (r *SQLRepository) addEdges(ctx context.Context, tx *sql.Tx, edges []*domain.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO graph_edges (from_party, to_party, total_amount, transaction_count, first_transaction, last_transaction)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_party, to_party) DO UPDATE SET
			total_amount = graph_edges.total_amount + excluded.total_amount,
			transaction_count = graph_edges.transaction_count + excluded.transaction_count,
			first_transaction = CASE WHEN excluded.first_transaction < graph_edges.first_transaction
				THEN excluded.first_transaction ELSE graph_edges.first_transaction END,
			last_transaction = CASE WHEN excluded.last_transaction > graph_edges.last_transaction
				THEN excluded.last_transaction ELSE graph_edges.last_transaction END
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx,
			e.FromParty, e.ToParty, e.TotalAmount.String(), e.TransactionCount,
			toNanos(e.FirstTransaction), toNanos(e.LastTransaction),
		); err != nil {
			return fmt.Errorf("upsert edge %s->%s: %w", e.FromParty, e.ToParty, err)
		}
	}
	return nil
}

// mergeNodes reads each stored node, adds the delta with decimal
// arithmetic and writes the result back. SQLite has no exact numeric
// type, so totals are kept as TEXT and never summed in SQL.
func (r *SQLRepository) mergeNodes(ctx context.Context, tx *sql.Tx, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	read := r.rebind(`
		SELECT party_id, total_volume, transaction_count, first_seen, last_seen
		FROM graph_nodes WHERE party_id = ?
	`)
	write := r.rebind(`
		INSERT INTO graph_nodes (party_id, total_volume, transaction_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(party_id) DO UPDATE SET
			total_volume = excluded.total_volume,
			transaction_count = excluded.transaction_count,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen
	`)

	for _, delta := range nodes {
		merged := *delta
		stored, err := scanNode(tx.QueryRowContext(ctx, read, delta.PartyID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read node %s: %w", delta.PartyID, err)
		default:
			stored.Merge(delta)
			merged = *stored
		}

		if _, err := tx.ExecContext(ctx, write,
			merged.PartyID, merged.TotalVolume.String(), merged.TransactionCount,
			toNanos(merged.FirstSeen), toNanos(merged.LastSeen),
		); err != nil {
			return fmt.Errorf("upsert node %s: %w", delta.PartyID, err)
		}
	}
	return nil
}

func (r *SQLRepository) mergeEdges(ctx context.Context, tx *sql.Tx, edges []*domain.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	read := r.rebind(`SELECT ` + edgeColumns + ` FROM graph_edges WHERE from_party = ? AND to_party = ?`)
	write := r.rebind(`
		INSERT INTO graph_edges (from_party, to_party, total_amount, transaction_count, first_transaction, last_transaction)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_party, to_party) DO UPDATE SET
			total_amount = excluded.total_amount,
			transaction_count = excluded.transaction_count,
			first_transaction = excluded.first_transaction,
			last_transaction = excluded.last_transaction
	`)

	for _, delta := range edges {
		merged := *delta
		stored, err := scanEdge(tx.QueryRowContext(ctx, read, delta.FromParty, delta.ToParty))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read edge %s->%s: %w", delta.FromParty, delta.ToParty, err)
		default:
			stored.Merge(delta)
			merged = *stored
		}

		if _, err := tx.ExecContext(ctx, write,
			merged.FromParty, merged.ToParty, merged.TotalAmount.String(), merged.TransactionCount,
			toNanos(merged.FirstTransaction), toNanos(merged.LastTransaction),
		); err != nil {
			return fmt.Errorf("upsert edge %s->%s: %w", delta.FromParty, delta.ToParty, err)
		}
	}
	return nil
}

// GetNode returns the aggregate for a party.
func (r *SQLRepository) GetNode(ctx context.Context, partyID string) (*domain.Node, error) {
	query := `
		SELECT party_id, total_volume, transaction_count, first_seen, last_seen
		FROM graph_nodes WHERE party_id = ?
	`

	n, err := scanNode(r.db.QueryRowContext(ctx, r.rebind(query), partyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func scanNode(row scanner) (*domain.Node, error) {
	var n domain.Node
	var first, last int64
	if err := row.Scan(&n.PartyID, &n.TotalVolume, &n.TransactionCount, &first, &last); err != nil {
		return nil, err
	}
	n.FirstSeen = fromNanos(first)
	n.LastSeen = fromNanos(last)
	return &n, nil
}

const edgeColumns = `from_party, to_party, total_amount, transaction_count, first_transaction, last_transaction`

// GetEdge returns the aggregate for a directed party pair.
func (r *SQLRepository) GetEdge(ctx context.Context, fromParty, toParty string) (*domain.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM graph_edges WHERE from_party = ? AND to_party = ?`

	e, err := scanEdge(r.db.QueryRowContext(ctx, r.rebind(query), fromParty, toParty))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEdgesFrom returns the outgoing edges of a party ordered by counterparty.
func (r *SQLRepository) ListEdgesFrom(ctx context.Context, partyID string) ([]*domain.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM graph_edges WHERE from_party = ? ORDER BY to_party`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*domain.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func scanEdge(row scanner) (*domain.Edge, error) {
	var e domain.Edge
	var first, last int64
	if err := row.Scan(&e.FromParty, &e.ToParty, &e.TotalAmount, &e.TransactionCount, &first, &last); err != nil {
		return nil, err
	}
	e.FirstTransaction = fromNanos(first)
	e.LastTransaction = fromNanos(last)
	return &e, nil
}

// SaveProfile creates or replaces a party profile.
func (r *SQLRepository) SaveProfile(ctx context.Context, p *domain.PartyProfile) error {
	if p == nil || p.PartyID == "" {
		return fmt.Errorf("%w: partyId is required", domain.ErrInvalidInput)
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	query := `
		INSERT INTO party_profiles (party_id, name, occupation, income_bracket, country, pep, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(party_id) DO UPDATE SET
			name = excluded.name,
			occupation = excluded.occupation,
			income_bracket = excluded.income_bracket,
			country = excluded.country,
			pep = excluded.pep,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.PartyID, p.Name, p.Occupation, string(p.IncomeBracket), p.Country, boolToInt(p.PEP), toNanos(updated),
	)
	return err
}

// GetProfile retrieves a party profile.
func (r *SQLRepository) GetProfile(ctx context.Context, partyID string) (*domain.PartyProfile, error) {
	query := `
		SELECT party_id, name, occupation, income_bracket, country, pep, updated_at
		FROM party_profiles WHERE party_id = ?
	`

	var p domain.PartyProfile
	var bracket string
	var pep int
	var updated int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), partyID).Scan(
		&p.PartyID, &p.Name, &p.Occupation, &bracket, &p.Country, &pep, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.IncomeBracket = domain.IncomeBracket(bracket)
	p.PEP = pep == 1
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// SaveRuleDefinition creates or replaces a rule definition.
func (r *SQLRepository) SaveRuleDefinition(ctx context.Context, def *domain.RuleDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO rule_definitions (
			id, name, description, expression, weight, severity,
			mandatory, time_critical, indicator, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			severity = excluded.severity,
			mandatory = excluded.mandatory,
			time_critical = excluded.time_critical,
			indicator = excluded.indicator,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		def.ID, def.Name, def.Description, def.Expression, def.Weight, string(def.Severity),
		boolToInt(def.Mandatory), boolToInt(def.TimeCritical), def.Indicator, boolToInt(def.Enabled),
		toNanos(now), toNanos(now),
	)
	return err
}

// ListRuleDefinitions returns every stored definition ordered by id.
func (r *SQLRepository) ListRuleDefinitions(ctx context.Context) ([]*domain.RuleDefinition, error) {
	query := `
		SELECT id, name, description, expression, weight, severity,
		       mandatory, time_critical, indicator, enabled, created_at, updated_at
		FROM rule_definitions
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*domain.RuleDefinition
	for rows.Next() {
		var d domain.RuleDefinition
		var severity string
		var mandatory, timeCritical, enabled int
		var created, updated int64

		if err := rows.Scan(
			&d.ID, &d.Name, &d.Description, &d.Expression, &d.Weight, &severity,
			&mandatory, &timeCritical, &d.Indicator, &enabled, &created, &updated,
		); err != nil {
			return nil, err
		}
		d.Severity = domain.Severity(severity)
		d.Mandatory = mandatory == 1
		d.TimeCritical = timeCritical == 1
		d.Enabled = enabled == 1
		d.CreatedAt = fromNanos(created)
		d.UpdatedAt = fromNanos(updated)
		defs = append(defs, &d)
	}
	return defs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
