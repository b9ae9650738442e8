package infra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const goalColumns = `id, name, challenge_kind, wait_minutes, tap_count, started_at, duration_days, completed`

func scanGoal(row rowScanner) (domain.Goal, error) {
	var (
		g         domain.Goal
		challenge string
		started   int64
		completed int
	)
	err := row.Scan(&g.ID, &g.Name, &challenge, &g.Challenge.WaitMinutes, &g.Challenge.TapCount,
		&started, &g.DurationDays, &completed)
	if err != nil {
		return g, err
	}
	g.Challenge.Kind = domain.ChallengeKind(challenge)
	g.StartedAt = fromMillis(started)
	g.Completed = completed != 0
	return g, nil
}

// CreateGoal inserts a goal and its initial items in one transaction.
func (s *SQLCipherStore) CreateGoal(ctx context.Context, goal domain.Goal) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO goals (`+goalColumns+`, ends_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			goal.ID, goal.Name, string(goal.Challenge.Kind), goal.Challenge.WaitMinutes, goal.Challenge.TapCount,
			toMillis(goal.StartedAt), goal.DurationDays, boolInt(goal.Completed), toMillis(goal.EndsAt()),
		)
		if err != nil {
			return err
		}
		for _, item := range goal.Items {
			if err := insertGoalItem(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertGoalItem(ctx context.Context, tx *sql.Tx, item domain.GoalItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO goal_items (id, goal_id, identifier, kind, display_name)
		VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.GoalID, item.Identifier, string(item.Kind), item.DisplayName,
	)
	return err
}

// AddGoalItem appends an item to an existing goal.
func (s *SQLCipherStore) AddGoalItem(ctx context.Context, item domain.GoalItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM goals WHERE id = ?`, item.GoalID).Scan(&exists)
		if err != nil {
			return notFound(err)
		}
		return insertGoalItem(ctx, tx, item)
	})
}

// GetGoal returns a goal with its items.
func (s *SQLCipherStore) GetGoal(ctx context.Context, id string) (*domain.Goal, error) {
	g, err := scanGoal(s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := s.goalItems(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Items = items
	return &g, nil
}

func (s *SQLCipherStore) goalItems(ctx context.Context, goalID string) ([]domain.GoalItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal_id, identifier, kind, display_name
		FROM goal_items WHERE goal_id = ? ORDER BY rowid`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.GoalItem
	for rows.Next() {
		var it domain.GoalItem
		var kind string
		if err := rows.Scan(&it.ID, &it.GoalID, &it.Identifier, &kind, &it.DisplayName); err != nil {
			return nil, err
		}
		it.Kind = domain.ItemKind(kind)
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListGoals returns all goals with their items, oldest first.
func (s *SQLCipherStore) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals ORDER BY started_at, id`)
	if err != nil {
		return nil, err
	}
	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		goals = append(goals, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range goals {
		items, err := s.goalItems(ctx, goals[i].ID)
		if err != nil {
			return nil, err
		}
		goals[i].Items = items
	}
	return goals, nil
}

// FindGoalItem returns an item of a goal still running at now, plus the goal.
func (s *SQLCipherStore) FindGoalItem(ctx context.Context, identifier string, kind domain.ItemKind, mode domain.MatchMode, now time.Time) (*domain.GoalItem, *domain.Goal, error) {
	query := `
		SELECT i.id, i.goal_id, i.identifier, i.kind, i.display_name
		FROM goal_items i JOIN goals g ON g.id = i.goal_id
		WHERE g.completed = 0 AND g.ends_at > ? AND i.kind = ? AND ` + matchClause(mode, "i.identifier") + `
		ORDER BY g.id LIMIT 1`
	args := append([]any{toMillis(now), string(kind)}, matchArgs(mode, identifier)...)

	var it domain.GoalItem
	var itemKind string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&it.ID, &it.GoalID, &it.Identifier, &itemKind, &it.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	it.Kind = domain.ItemKind(itemKind)

	g, err := s.GetGoal(ctx, it.GoalID)
	if err != nil {
		return nil, nil, err
	}
	return &it, g, nil
}

// CompleteExpiredGoals marks goals whose end passed as completed.
func (s *SQLCipherStore) CompleteExpiredGoals(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE goals SET completed = 1 WHERE completed = 0 AND ends_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteGoal removes a completed goal and its items.
func (s *SQLCipherStore) DeleteGoal(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var completed int
		if err := tx.QueryRowContext(ctx, `SELECT completed FROM goals WHERE id = ?`, id).Scan(&completed); err != nil {
			return notFound(err)
		}
		if completed == 0 {
			return domain.ErrGoalLocked
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM goal_items WHERE goal_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
		return err
	})
}
