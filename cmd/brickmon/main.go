// Package main is the CLI entry point for brickmon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/brick_mon/internal/config"
	"github.com/eliteGoblin/focusd/brick_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/infra"
	"github.com/eliteGoblin/focusd/brick_mon/internal/policy"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	cobra.OnInitialize(initConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "brickmon",
	Short: "Digital-wellbeing enforcer - bricks distractions on a schedule",
	Long: `brickmon blocks distracting apps and websites. Blocks come from three
sources: ad-hoc blocks, long-term goals and recurring schedules. A brick
session blocks everything except essential and allowlisted apps until it ends.

Unblocking always costs something: a wait timer or a tap challenge.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start enforcement (launches watcher and guardian daemons)",
	Long: `Starts both the watcher and guardian daemons.
The watcher enforces blocks and runs brick sessions and schedules.
The guardian monitors the watcher and restarts it if killed.
A restarted watcher resumes the running session.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and session status",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when spawning daemons
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	daemonRole string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfigPath(), "path to brickmon.yml")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log to stderr")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	daemonCmd.Flags().StringVar(&daemonRole, "role", "", "Daemon role (watcher/guardian)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(blockCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(essentialCmd())
	rootCmd.AddCommand(unlockCmd())
	rootCmd.AddCommand(installCmd())
	rootCmd.AddCommand(uninstallCmd())
}

func initConfig() {
	viper.SetEnvPrefix("BRICKMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".brickmon", "brickmon.yml")
}

// loadConfig reads the YAML config, then applies flag and env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if dir := viper.GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

// forwardedFlags are passed to spawned daemons so they open the same store.
func forwardedFlags() []string {
	var args []string
	if p := viper.GetString("config"); p != "" {
		args = append(args, "--config", p)
	}
	if d := viper.GetString("data-dir"); d != "" {
		args = append(args, "--data-dir", d)
	}
	return args
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pm := infra.NewProcessManager()
	store, err := infra.OpenStore(cfg.DataDir, pm, policy.NewRegistry().Seeds())
	if err != nil {
		return err
	}

	entry, _ := store.GetAll()
	store.Close()
	if entry != nil && pm.IsRunning(entry.WatcherPID) && pm.IsRunning(entry.GuardianPID) {
		fmt.Println("brickmon is already running (fully protected)")
		return nil
	}

	launcher, err := daemon.NewLauncher(forwardedFlags()...)
	if err != nil {
		return err
	}
	if err := launcher.StartBoth(); err != nil {
		return fmt.Errorf("failed to start daemons: %w", err)
	}

	// Wait a moment for daemons to register
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== brickmon Started ===")
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Log: %s\n", cfg.Log.Path)
	fmt.Println("\nDaemons are running in the background.")
	fmt.Println("They will restart automatically if killed.")
	fmt.Println("========================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		pm := infra.NewProcessManager()
		tw := newTable("Component", "State")

		entry, err := a.store.GetAll()
		if err != nil || entry == nil {
			tw.AppendRow(table.Row{"Daemons", "NOT RUNNING (run 'brickmon start')"})
		} else {
			tw.AppendRow(table.Row{"Daemons", daemonState(pm.IsRunning(entry.WatcherPID), pm.IsRunning(entry.GuardianPID))})
			if entry.AppVersion != "" {
				tw.AppendRow(table.Row{"Version", entry.AppVersion})
			}
			if entry.LastHeartbeat > 0 {
				lastBeat := time.Unix(entry.LastHeartbeat, 0)
				tw.AppendRow(table.Row{"Last heartbeat", time.Since(lastBeat).Round(time.Second).String() + " ago"})
			}
		}

		if reasons := usecase.DegradedReasons(ctx, infra.NewProcessProbe(pm)); len(reasons) > 0 {
			tw.AppendRow(table.Row{"Enforcement", "DEGRADED: " + strings.Join(reasons, ", ")})
		} else {
			tw.AppendRow(table.Row{"Enforcement", "OK"})
		}

		if cur, ok := a.sessions.Current(); ok {
			tw.AppendRow(table.Row{"Session", fmt.Sprintf("%s (%s), %s left",
				cur.Session.Name, cur.Session.Type, a.sessions.Remaining().Round(time.Second))})
		} else {
			tw.AppendRow(table.Row{"Session", "none"})
		}

		blocks, err := a.blocks.List(ctx)
		if err != nil {
			return err
		}
		goals, err := a.goals.List(ctx)
		if err != nil {
			return err
		}
		schedules, err := a.schedules.List(ctx)
		if err != nil {
			return err
		}
		tw.AppendRow(table.Row{"Blocks", len(blocks)})
		tw.AppendRow(table.Row{"Goals", len(goals)})
		tw.AppendRow(table.Row{"Schedules", len(schedules)})
		tw.Render()
		return nil
	})
}

func daemonState(watcherAlive, guardianAlive bool) string {
	switch {
	case watcherAlive && guardianAlive:
		return "RUNNING (fully protected)"
	case watcherAlive:
		return "DEGRADED (guardian down, watcher will restart it)"
	case guardianAlive:
		return "DEGRADED (watcher down, guardian will restart it)"
	}
	return "NOT RUNNING"
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonRole == "" {
		return fmt.Errorf("--role is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	role := domain.DaemonRole(daemonRole)
	d := domain.Daemon{
		PID:        os.Getpid(),
		Role:       role,
		StartedAt:  time.Now(),
		AppVersion: Version,
	}

	pm := infra.NewProcessManager()
	store, err := infra.OpenStore(cfg.DataDir, pm, policy.NewRegistry().Seeds())
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	launcher, err := daemon.NewLauncher(forwardedFlags()...)
	if err != nil {
		return err
	}

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch role {
	case domain.RoleWatcher:
		renderer := infra.NewKillRenderer(pm, logger.Named("renderer"), cfg.OwnPackage)
		defer renderer.Wait()
		apps := infra.NewDesktopAppSampler(os.Getpid(), cfg.OwnPackage)
		rt := daemon.NewRuntime(cfg, store, daemon.Host{
			Renderer:  renderer,
			Presenter: infra.NewProcessPresenter(pm, logger.Named("presenter")),
			Notifier:  infra.NewLogNotifier(logger.Named("notify")),
			Probe:     infra.NewProcessProbe(pm),
			Usage:     apps,
			Apps:      apps,
		}, infra.SystemClock{}, logger)
		defer rt.Close()

		if err := rt.Essentials.Warm(ctx); err != nil {
			logger.Warn("essential apps not loaded, using seeds on next lookup", zap.Error(err))
		}

		wcfg := daemon.DefaultWatcherConfig()
		wcfg.ReconcileInterval = cfg.Session.ReconcileInterval.D()
		watcher := daemon.NewWatcher(wcfg, rt.Sessions, store, launcher.Start, d, logger,
			rt.Enforcer, rt.Trigger)
		return watcher.Run(ctx)

	case domain.RoleGuardian:
		guardian := daemon.NewGuardian(daemon.DefaultGuardianConfig(), store, launcher.Start, d, logger)
		return guardian.Run(ctx)

	default:
		return fmt.Errorf("unknown role: %s", role)
	}
}

// createLogger builds the daemon's JSON file logger.
func createLogger(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{cfg.Log.Path}
	zcfg.ErrorOutputPaths = []string{cfg.Log.ErrorPath}
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		zcfg.Level = level
	}

	logger, err := zcfg.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// cliLogger logs to stderr with --verbose and is silent otherwise.
func cliLogger() *zap.Logger {
	if !viper.GetBool("verbose") {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("brickmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
