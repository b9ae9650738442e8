package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/infra"
)

func autostartManager() (domain.AutostartManager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return infra.NewAutostartManager(cfg.Log.Path, cfg.Log.ErrorPath)
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Start brickmon automatically at login",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := autostartManager()
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			if m.IsInstalled() && !m.NeedsUpdate(execPath) {
				fmt.Printf("Already installed: %s\n", m.Path())
				return nil
			}
			if err := m.Install(execPath); err != nil {
				return fmt.Errorf("install login service: %w", err)
			}
			fmt.Printf("Installed %s\n", m.Path())
			return nil
		},
	}
}

func uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop starting brickmon at login",
		Long: `Removes the login service only. Running daemons keep enforcing until the
next reboot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := autostartManager()
			if err != nil {
				return err
			}
			if !m.IsInstalled() {
				fmt.Println("Not installed")
				return nil
			}
			if err := m.Uninstall(); err != nil {
				return fmt.Errorf("uninstall login service: %w", err)
			}
			fmt.Printf("Removed %s\n", m.Path())
			return nil
		},
	}
}
