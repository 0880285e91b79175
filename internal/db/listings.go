package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// ListingStore keeps each listing as a JSONB document next to the indexed
// columns queries filter on. The version column is authoritative.
type ListingStore struct {
	pool *pgxpool.Pool
}

func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

var _ marketplace.Store = (*ListingStore)(nil)

func (s *ListingStore) Get(ctx context.Context, id string) (*marketplace.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT doc, version FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, marketplace.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.ListingStore.Get: %w", err)
	}
	return l, nil
}

func (s *ListingStore) Create(ctx context.Context, l *marketplace.Listing) error {
	doc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("db.ListingStore.Create: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO listings (id, owner_identity, counterpart_identity, kind, category, status, amount,
			title, description, escrow_status, escrow_amount, doc, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`, l.ID, l.OwnerIdentity, l.CounterpartIdentity, string(l.Kind), string(l.Category), string(l.Status),
		l.Amount, l.Title, l.Description, string(l.Escrow.Status), l.Escrow.CapturedAmount,
		doc, l.Version, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db.ListingStore.Create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrVersionConflict
	}
	return nil
}

// ConditionalUpdate locks the row, checks the version and writes the
// mutated document in one transaction.
func (s *ListingStore) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, mutate marketplace.Mutator) (*marketplace.Listing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.ListingStore.ConditionalUpdate: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT doc, version FROM listings WHERE id = $1 FOR UPDATE`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, marketplace.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.ListingStore.ConditionalUpdate: %w", err)
	}
	if l.Version != expectedVersion {
		return nil, marketplace.ErrVersionConflict
	}

	if err := mutate(l); err != nil {
		return nil, err
	}
	l.Version = expectedVersion + 1

	doc, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("db.ListingStore.ConditionalUpdate: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE listings SET
			counterpart_identity = $2, category = $3, status = $4, amount = $5, title = $6,
			description = $7, escrow_status = $8, escrow_amount = $9, doc = $10,
			version = $11, updated_at = $12
		WHERE id = $1 AND version = $13
	`, l.ID, l.CounterpartIdentity, string(l.Category), string(l.Status), l.Amount, l.Title,
		l.Description, string(l.Escrow.Status), l.Escrow.CapturedAmount, doc,
		l.Version, l.UpdatedAt, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("db.ListingStore.ConditionalUpdate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, marketplace.ErrVersionConflict
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("db.ListingStore.ConditionalUpdate: commit: %w", err)
	}
	return l, nil
}

func (s *ListingStore) Delete(ctx context.Context, id string, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("db.ListingStore.Delete: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("db.ListingStore.Delete: %w", err)
	}
	if !exists {
		return marketplace.ErrListingNotFound
	}
	return marketplace.ErrVersionConflict
}

func (s *ListingStore) Query(ctx context.Context, f marketplace.Filter) ([]*marketplace.Listing, error) {
	query, args := buildListingQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ListingStore.Query: %w", err)
	}
	defer rows.Close()

	out := []*marketplace.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("db.ListingStore.Query: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db.ListingStore.Query: %w", err)
	}
	return out, nil
}

func (s *ListingStore) Stats(ctx context.Context) (marketplace.Stats, error) {
	st := marketplace.Stats{ByStatus: map[marketplace.Status]int64{}, FundedEscrow: decimal.Zero}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM listings GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("db.ListingStore.Stats: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("db.ListingStore.Stats: %w", err)
		}
		st.ByStatus[marketplace.Status(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("db.ListingStore.Stats: %w", err)
	}

	var funded string
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(escrow_amount), 0)::text FROM listings WHERE escrow_status = $1`,
		string(marketplace.EscrowFunded)).Scan(&funded)
	if err != nil {
		return st, fmt.Errorf("db.ListingStore.Stats: %w", err)
	}
	if st.FundedEscrow, err = decimal.NewFromString(funded); err != nil {
		return st, fmt.Errorf("db.ListingStore.Stats: %w", err)
	}
	return st, nil
}

func scanListing(row pgx.Row) (*marketplace.Listing, error) {
	var doc []byte
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}
	l := &marketplace.Listing{}
	if err := json.Unmarshal(doc, l); err != nil {
		return nil, err
	}
	l.Version = version
	return l, nil
}

// buildListingQuery renders f as a parameterised SELECT over listings.
func buildListingQuery(f marketplace.Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Owner != "" {
		where = append(where, "owner_identity = "+arg(f.Owner))
	}
	if f.Counterpart != "" {
		where = append(where, "counterpart_identity = "+arg(f.Counterpart))
	}
	if f.Participant != "" {
		p := arg(f.Participant)
		where = append(where, "(owner_identity = "+p+" OR counterpart_identity = "+p+")")
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Kind != "" {
		where = append(where, "kind = "+arg(string(f.Kind)))
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(string(f.Category)))
	}
	if f.Text != "" {
		q := arg("%" + escapeLike(f.Text) + "%")
		where = append(where, "(title ILIKE "+q+" OR description ILIKE "+q+")")
	}

	var b strings.Builder
	b.WriteString("SELECT doc, version FROM listings")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	switch f.SortBy {
	case marketplace.SortAmount:
		b.WriteString(" ORDER BY amount " + dir + ", created_at " + dir)
	default:
		b.WriteString(" ORDER BY created_at " + dir + ", id " + dir)
	}
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
