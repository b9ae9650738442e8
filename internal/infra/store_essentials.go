package infra

import (
	"context"
	"database/sql"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// ListEssentialApps returns every essential app ordered by package.
func (s *SQLCipherStore) ListEssentialApps(ctx context.Context) ([]domain.EssentialApp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package, name, is_system, is_user_added, session_types
		FROM essential_apps ORDER BY package`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EssentialApp
	for rows.Next() {
		var (
			e                 domain.EssentialApp
			system, userAdded int
			types             string
		)
		if err := rows.Scan(&e.Package, &e.Name, &system, &userAdded, &types); err != nil {
			return nil, err
		}
		e.IsSystemEssential = system != 0
		e.IsUserAdded = userAdded != 0
		e.AllowedSessionTypes = splitSessionTypes(types)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddEssentialApp upserts an entry. Seeded system entries are never overwritten.
func (s *SQLCipherStore) AddEssentialApp(ctx context.Context, app domain.EssentialApp) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO essential_apps (package, name, is_system, is_user_added, session_types)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(package) DO UPDATE SET
			name = excluded.name,
			is_user_added = excluded.is_user_added,
			session_types = excluded.session_types
		WHERE essential_apps.is_system = 0`,
		app.Package, app.Name, boolInt(app.IsSystemEssential), boolInt(app.IsUserAdded),
		joinSessionTypes(app.AllowedSessionTypes),
	)
	return err
}

// SeedEssentialApps inserts entries that are not yet present.
func (s *SQLCipherStore) SeedEssentialApps(ctx context.Context, apps []domain.EssentialApp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, app := range apps {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO essential_apps (package, name, is_system, is_user_added, session_types)
				VALUES (?, ?, ?, ?, ?)`,
				app.Package, app.Name, boolInt(app.IsSystemEssential), boolInt(app.IsUserAdded),
				joinSessionTypes(app.AllowedSessionTypes),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveEssentialApp deletes a user-added entry.
func (s *SQLCipherStore) RemoveEssentialApp(ctx context.Context, pkg string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var system int
		if err := tx.QueryRowContext(ctx, `SELECT is_system FROM essential_apps WHERE package = ?`, pkg).Scan(&system); err != nil {
			return notFound(err)
		}
		if system != 0 {
			return domain.ErrSystemEssential
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM essential_apps WHERE package = ?`, pkg)
		return err
	})
}
