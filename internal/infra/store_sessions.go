package infra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const sessionColumns = `id, type, name, duration_minutes, schedule_id, allow_emergency,
	allowlist, current_start, current_end, is_bricked`

const sessionLogColumns = `id, session_id, started_at, ended_at, scheduled_ms, actual_ms,
	status, bypass_attempts, essential_access, override_reason`

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s                 domain.Session
		stype, allowlist  string
		allowEmerg, brick int
		curStart, curEnd  sql.NullInt64
	)
	err := row.Scan(&s.ID, &stype, &s.Name, &s.DurationMinutes, &s.ScheduleID, &allowEmerg,
		&allowlist, &curStart, &curEnd, &brick)
	if err != nil {
		return s, err
	}
	s.Type = domain.SessionType(stype)
	s.AllowEmergencyOverride = allowEmerg != 0
	s.Allowlist = domain.SplitAllowlist(allowlist)
	s.CurrentStart = timePtr(curStart)
	s.CurrentEnd = timePtr(curEnd)
	s.IsCurrentlyBricked = brick != 0
	return s, nil
}

func scanSessionLog(row rowScanner) (domain.SessionLog, error) {
	var (
		l                  domain.SessionLog
		started            int64
		ended              sql.NullInt64
		scheduled, actual  int64
		status, essentials string
	)
	err := row.Scan(&l.ID, &l.SessionID, &started, &ended, &scheduled, &actual,
		&status, &l.BypassAttempts, &essentials, &l.OverrideReason)
	if err != nil {
		return l, err
	}
	l.StartedAt = fromMillis(started)
	l.EndedAt = timePtr(ended)
	l.ScheduledDuration = time.Duration(scheduled) * time.Millisecond
	l.ActualDuration = time.Duration(actual) * time.Millisecond
	l.Status = domain.SessionStatus(status)
	l.EssentialAccess = domain.SplitAllowlist(essentials)
	return l, nil
}

// SaveSession upserts a definition. Run state columns are left untouched on update.
func (s *SQLCipherStore) SaveSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, type, name, duration_minutes, schedule_id, allow_emergency, allowlist)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			schedule_id = excluded.schedule_id,
			allow_emergency = excluded.allow_emergency,
			allowlist = excluded.allowlist`,
		sess.ID, string(sess.Type), sess.Name, sess.DurationMinutes, sess.ScheduleID,
		boolInt(sess.AllowEmergencyOverride), domain.JoinAllowlist(sess.Allowlist),
	)
	return err
}

// GetSession returns the session with id.
func (s *SQLCipherStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

// ListSessions returns every session definition ordered by id.
func (s *SQLCipherStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// FindSessionBySchedule returns the session driven by scheduleID.
func (s *SQLCipherStore) FindSessionBySchedule(ctx context.Context, scheduleID string) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE schedule_id = ? ORDER BY id LIMIT 1`, scheduleID))
	if err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

// FindBrickedSession returns the running session, or nil.
func (s *SQLCipherStore) FindBrickedSession(ctx context.Context) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE is_bricked = 1 ORDER BY id LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// StartSession marks sessionID bricked and opens log in one transaction.
func (s *SQLCipherStore) StartSession(ctx context.Context, sessionID string, start, end time.Time, log domain.SessionLog) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
			return notFound(err)
		}

		var other string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE is_bricked = 1 AND id <> ? LIMIT 1`, sessionID).Scan(&other)
		if err == nil {
			return domain.ErrSessionActive
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET current_start = ?, current_end = ?, is_bricked = 1 WHERE id = ?`,
			toMillis(start), toMillis(end), sessionID); err != nil {
			return err
		}
		return insertSessionLog(ctx, tx, log)
	})
}

func insertSessionLog(ctx context.Context, tx *sql.Tx, l domain.SessionLog) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO session_logs (`+sessionLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, toMillis(l.StartedAt), nullMillis(l.EndedAt),
		l.ScheduledDuration.Milliseconds(), l.ActualDuration.Milliseconds(),
		string(l.Status), l.BypassAttempts, domain.JoinAllowlist(l.EssentialAccess), l.OverrideReason,
	)
	return err
}

// CompleteSession clears the run state and closes log in one transaction.
// A log that is already closed is left as is; counters are never overwritten.
func (s *SQLCipherStore) CompleteSession(ctx context.Context, sessionID string, log domain.SessionLog) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
			return notFound(err)
		}

		var status string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM session_logs WHERE id = ?`, log.ID).Scan(&status); err != nil {
			return notFound(err)
		}
		if domain.SessionStatus(status) != domain.StatusOngoing {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE session_logs SET ended_at = ?, actual_ms = ?, status = ?, override_reason = ?
			WHERE id = ?`,
			nullMillis(log.EndedAt), log.ActualDuration.Milliseconds(), string(log.Status), log.OverrideReason, log.ID,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET current_start = NULL, current_end = NULL, is_bricked = 0 WHERE id = ?`, sessionID)
		return err
	})
}

// GetSessionLog returns the log with id.
func (s *SQLCipherStore) GetSessionLog(ctx context.Context, id string) (*domain.SessionLog, error) {
	l, err := scanSessionLog(s.db.QueryRowContext(ctx, `SELECT `+sessionLogColumns+` FROM session_logs WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// OpenSessionLog returns the newest ONGOING log of sessionID.
func (s *SQLCipherStore) OpenSessionLog(ctx context.Context, sessionID string) (*domain.SessionLog, error) {
	l, err := scanSessionLog(s.db.QueryRowContext(ctx, `
		SELECT `+sessionLogColumns+` FROM session_logs
		WHERE session_id = ? AND status = ?
		ORDER BY rowid DESC LIMIT 1`, sessionID, string(domain.StatusOngoing)))
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// ListSessionLogs returns logs in insertion order. An empty sessionID lists all.
func (s *SQLCipherStore) ListSessionLogs(ctx context.Context, sessionID string) ([]domain.SessionLog, error) {
	query := `SELECT ` + sessionLogColumns + ` FROM session_logs`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionLog
	for rows.Next() {
		l, err := scanSessionLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RecordBypassAttempt increments the counter of an ONGOING log.
func (s *SQLCipherStore) RecordBypassAttempt(ctx context.Context, logID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM session_logs WHERE id = ?`, logID).Scan(&status); err != nil {
			return notFound(err)
		}
		if domain.SessionStatus(status) != domain.StatusOngoing {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE session_logs SET bypass_attempts = bypass_attempts + 1 WHERE id = ?`, logID)
		return err
	})
}

// RecordEssentialAccess adds pkg to an ONGOING log's access set.
func (s *SQLCipherStore) RecordEssentialAccess(ctx context.Context, logID, pkg string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status, joined string
		err := tx.QueryRowContext(ctx,
			`SELECT status, essential_access FROM session_logs WHERE id = ?`, logID).Scan(&status, &joined)
		if err != nil {
			return notFound(err)
		}
		if domain.SessionStatus(status) != domain.StatusOngoing {
			return nil
		}
		accessed := domain.SplitAllowlist(joined)
		for _, p := range accessed {
			if p == pkg {
				return nil
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE session_logs SET essential_access = ? WHERE id = ?`,
			domain.JoinAllowlist(append(accessed, pkg)), logID)
		return err
	})
}
