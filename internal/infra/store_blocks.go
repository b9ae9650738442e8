package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const blockedColumns = `id, identifier, kind, challenge_kind, wait_minutes, tap_count, created_at, expires_at`

func scanBlockedItem(row rowScanner) (domain.BlockedItem, error) {
	var (
		b         domain.BlockedItem
		kind      string
		challenge string
		created   int64
		expires   sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.Identifier, &kind, &challenge,
		&b.Challenge.WaitMinutes, &b.Challenge.TapCount, &created, &expires)
	if err != nil {
		return b, err
	}
	b.Kind = domain.ItemKind(kind)
	b.Challenge.Kind = domain.ChallengeKind(challenge)
	b.CreatedAt = fromMillis(created)
	b.ExpiresAt = timePtr(expires)
	return b, nil
}

// AddBlockedItem inserts a new item.
func (s *SQLCipherStore) AddBlockedItem(ctx context.Context, item domain.BlockedItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_items (`+blockedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Identifier, string(item.Kind), string(item.Challenge.Kind),
		item.Challenge.WaitMinutes, item.Challenge.TapCount,
		toMillis(item.CreatedAt), nullMillis(item.ExpiresAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyBlocked, item.Identifier)
	}
	return err
}

// RemoveBlockedItem deletes the item for identifier.
func (s *SQLCipherStore) RemoveBlockedItem(ctx context.Context, identifier string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocked_items WHERE identifier = ?`, identifier)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListBlockedItems returns every item ordered by identifier.
func (s *SQLCipherStore) ListBlockedItems(ctx context.Context) ([]domain.BlockedItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blockedColumns+` FROM blocked_items ORDER BY identifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.BlockedItem
	for rows.Next() {
		b, err := scanBlockedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// FindBlockedItem returns the first unexpired item matching identifier.
func (s *SQLCipherStore) FindBlockedItem(ctx context.Context, identifier string, kind domain.ItemKind, mode domain.MatchMode, now time.Time) (*domain.BlockedItem, error) {
	query := `SELECT ` + blockedColumns + ` FROM blocked_items
		WHERE kind = ? AND (expires_at IS NULL OR expires_at > ?) AND ` + matchClause(mode, "identifier") + `
		ORDER BY identifier LIMIT 1`
	args := append([]any{string(kind), toMillis(now)}, matchArgs(mode, identifier)...)

	b, err := scanBlockedItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteExpiredBlockedItems removes items whose expiry is at or before now.
func (s *SQLCipherStore) DeleteExpiredBlockedItems(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blocked_items WHERE expires_at IS NOT NULL AND expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
