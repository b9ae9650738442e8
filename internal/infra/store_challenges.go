package infra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// GrantUnlock inserts or extends an unlock for u.Identifier.
func (s *SQLCipherStore) GrantUnlock(ctx context.Context, u domain.TemporaryUnlock) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO temporary_unlocks (identifier, expires_at) VALUES (?, ?)`,
		u.Identifier, toMillis(u.ExpiresAt))
	return err
}

// ActiveUnlock returns the unlock for identifier if it has not expired at now.
func (s *SQLCipherStore) ActiveUnlock(ctx context.Context, identifier string, now time.Time) (*domain.TemporaryUnlock, error) {
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM temporary_unlocks WHERE identifier = ? AND expires_at > ?`,
		identifier, toMillis(now)).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.TemporaryUnlock{Identifier: identifier, ExpiresAt: fromMillis(expires)}, nil
}

// DeleteExpiredUnlocks removes unlocks that expired at or before now.
func (s *SQLCipherStore) DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM temporary_unlocks WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SaveTimerState persists a wait timer, replacing any previous one.
func (s *SQLCipherStore) SaveTimerState(ctx context.Context, st domain.TimerChallengeState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO timer_states (identifier, started_at, duration_ms, active)
		VALUES (?, ?, ?, ?)`,
		st.Identifier, toMillis(st.StartedAt), st.Duration.Milliseconds(), boolInt(st.Active))
	return err
}

// GetTimerState returns the timer for identifier, or nil.
func (s *SQLCipherStore) GetTimerState(ctx context.Context, identifier string) (*domain.TimerChallengeState, error) {
	var (
		started, durMS int64
		active         int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at, duration_ms, active FROM timer_states WHERE identifier = ?`, identifier).
		Scan(&started, &durMS, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.TimerChallengeState{
		Identifier: identifier,
		StartedAt:  fromMillis(started),
		Duration:   time.Duration(durMS) * time.Millisecond,
		Active:     active != 0,
	}, nil
}

// ClearTimerState removes the timer for identifier.
func (s *SQLCipherStore) ClearTimerState(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM timer_states WHERE identifier = ?`, identifier)
	return err
}
