package infra

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// Register saves the daemon's PID under its role.
func (s *SQLCipherStore) Register(daemon domain.Daemon) error {
	now := time.Now()
	started := daemon.StartedAt
	if started.IsZero() {
		started = now
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (role, pid, started_at, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, started.Unix(), now.Unix(), daemon.AppVersion,
	)
	return err
}

// partner returns the registered daemon paired with role (watcher<->guardian).
func (s *SQLCipherStore) partner(role domain.DaemonRole) (*domain.Daemon, error) {
	partnerRole := domain.RoleWatcher
	if role == domain.RoleWatcher {
		partnerRole = domain.RoleGuardian
	}

	var pid int
	var started int64
	var version string
	err := s.db.QueryRow(`SELECT pid, started_at, app_version FROM daemon_state WHERE role = ?`,
		string(partnerRole)).Scan(&pid, &started, &version)
	if err == sql.ErrNoRows || (err == nil && pid == 0) {
		return nil, fmt.Errorf("partner %s not registered", partnerRole)
	}
	if err != nil {
		return nil, err
	}
	return &domain.Daemon{
		PID:        pid,
		Role:       partnerRole,
		StartedAt:  time.Unix(started, 0),
		AppVersion: version,
	}, nil
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *SQLCipherStore) UpdateHeartbeat(role domain.DaemonRole) error {
	res, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		time.Now().Unix(), string(role))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("daemon %s not registered", role)
	}
	return nil
}

// IsPartnerAlive checks if partner daemon is running via PID.
func (s *SQLCipherStore) IsPartnerAlive(role domain.DaemonRole) (bool, error) {
	p, err := s.partner(role)
	if err != nil {
		return false, nil // not registered = not alive
	}
	return s.processManager.IsRunning(p.PID), nil
}

// GetAll returns full registry state, or nil if no daemon registered.
func (s *SQLCipherStore) GetAll() (*domain.RegistryEntry, error) {
	rows, err := s.db.Query(`SELECT role, pid, last_heartbeat, app_version FROM daemon_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entry := &domain.RegistryEntry{}
	found := false
	for rows.Next() {
		var role, version string
		var pid int
		var heartbeat int64
		if err := rows.Scan(&role, &pid, &heartbeat, &version); err != nil {
			return nil, err
		}
		found = true
		switch domain.DaemonRole(role) {
		case domain.RoleWatcher:
			entry.WatcherPID = pid
			entry.AppVersion = version
		case domain.RoleGuardian:
			entry.GuardianPID = pid
		}
		if heartbeat > entry.LastHeartbeat {
			entry.LastHeartbeat = heartbeat
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

// Clear removes all daemon state.
func (s *SQLCipherStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM daemon_state`)
	return err
}
