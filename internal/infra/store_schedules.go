package infra

import (
	"context"
	"database/sql"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const scheduleColumns = `id, name, identifiers, kind, whole_device,
	start_hour, start_minute, end_hour, end_minute, active_days,
	challenge_kind, wait_minutes, tap_count, allow_emergency, session_type,
	allowlist, enabled, current_start, current_end`

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		s                       domain.Schedule
		identifiers, allowlist  string
		kind, challenge, stype  string
		wholeDevice, allowEmerg int
		enabled, days           int
		curStart, curEnd        sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.Name, &identifiers, &kind, &wholeDevice,
		&s.StartHour, &s.StartMinute, &s.EndHour, &s.EndMinute, &days,
		&challenge, &s.Challenge.WaitMinutes, &s.Challenge.TapCount, &allowEmerg, &stype,
		&allowlist, &enabled, &curStart, &curEnd)
	if err != nil {
		return s, err
	}
	s.Identifiers = domain.SplitAllowlist(identifiers)
	s.Kind = domain.ItemKind(kind)
	s.WholeDevice = wholeDevice != 0
	s.ActiveDays = domain.Weekdays(days)
	s.Challenge.Kind = domain.ChallengeKind(challenge)
	s.AllowEmergencyOverride = allowEmerg != 0
	s.SessionType = domain.SessionType(stype)
	s.Allowlist = domain.SplitAllowlist(allowlist)
	s.Enabled = enabled != 0
	s.CurrentStart = timePtr(curStart)
	s.CurrentEnd = timePtr(curEnd)
	return s, nil
}

// SaveSchedule inserts or updates a schedule definition.
func (s *SQLCipherStore) SaveSchedule(ctx context.Context, sched domain.Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.Name, domain.JoinAllowlist(sched.Identifiers), string(sched.Kind), boolInt(sched.WholeDevice),
		sched.StartHour, sched.StartMinute, sched.EndHour, sched.EndMinute, int(sched.ActiveDays),
		string(sched.Challenge.Kind), sched.Challenge.WaitMinutes, sched.Challenge.TapCount,
		boolInt(sched.AllowEmergencyOverride), string(sched.SessionType),
		domain.JoinAllowlist(sched.Allowlist), boolInt(sched.Enabled),
		nullMillis(sched.CurrentStart), nullMillis(sched.CurrentEnd),
	)
	return err
}

// GetSchedule returns the schedule with id.
func (s *SQLCipherStore) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	sched, err := scanSchedule(s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &sched, nil
}

// ListSchedules returns every schedule ordered by id.
func (s *SQLCipherStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// DeleteSchedule removes a schedule.
func (s *SQLCipherStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetScheduleActive records or clears the running window snapshot.
func (s *SQLCipherStore) SetScheduleActive(ctx context.Context, id string, start, end *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET current_start = ?, current_end = ? WHERE id = ?`,
		nullMillis(start), nullMillis(end), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
