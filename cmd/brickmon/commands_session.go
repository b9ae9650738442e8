package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage brick sessions",
		Long: `A brick session blocks every app except essential and allowlisted ones
until it ends. Only one session runs at a time.`,
	}
	cmd.AddCommand(sessionDefineCmd())
	cmd.AddCommand(sessionStartCmd())
	cmd.AddCommand(sessionQuickCmd())
	cmd.AddCommand(sessionEmergencyCmd())
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionHistoryCmd())
	return cmd
}

func sessionDefineCmd() *cobra.Command {
	var (
		sessionType string
		minutes     int
		allow       []string
		emergency   bool
	)
	cmd := &cobra.Command{
		Use:   "define <name>",
		Short: "Save a duration session definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseSessionType(sessionType)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				s, err := a.sessions.SaveDefinition(ctx, domain.Session{
					Type:                   t,
					Name:                   args[0],
					DurationMinutes:        minutes,
					AllowEmergencyOverride: emergency,
					Allowlist:              allow,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Session %s saved (%s)\n", s.Name, s.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionType, "type", "focus", "focus, sleep or detox")
	cmd.Flags().IntVar(&minutes, "minutes", 60, "session length")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "package allowed during the session (repeatable)")
	cmd.Flags().BoolVar(&emergency, "allow-emergency", false, "permit emergency override")
	return cmd
}

func sessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <session-id>",
		Short: "Start a saved session now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.sessions.StartDurationSession(ctx, args[0]); err != nil {
					return err
				}
				printStarted(a)
				return nil
			})
		},
	}
}

func sessionQuickCmd() *cobra.Command {
	var allow []string
	var emergency bool
	cmd := &cobra.Command{
		Use:   "quick <minutes>",
		Short: "Start an ad-hoc focus session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: minutes must be a number", domain.ErrInvalidDefinition)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if _, err := a.sessions.QuickStart(ctx, minutes, emergency, allow); err != nil {
					return err
				}
				printStarted(a)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "package allowed during the session (repeatable)")
	cmd.Flags().BoolVar(&emergency, "allow-emergency", false, "permit emergency override")
	return cmd
}

func printStarted(a *app) {
	cur, ok := a.sessions.Current()
	if !ok {
		return
	}
	fmt.Printf("Session %s started, ends %s\n", cur.Session.Name, cur.EndsAt.Local().Format(timeLayout))
}

func sessionEmergencyCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "End the running session early",
		Long: `Ends the running session if it permits emergency override. You must first
complete the emergency tap challenge by pressing Enter once per tap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				cur, ok := a.sessions.Current()
				if !ok {
					return domain.ErrNoActiveSession
				}
				if !a.cfg.Overlay.EmergencyEnabled || !cur.Session.AllowEmergencyOverride {
					return domain.ErrEmergencyNotPermitted
				}
				counter := usecase.NewTapCounter(a.cfg.Overlay.EmergencyTaps)
				err := runTaps(cmd.InOrStdin(), cmd.OutOrStdout(), a.cfg.Overlay.EmergencyTaps, func() (int, bool, error) {
					done := counter.Tap()
					return counter.Remaining(), done, nil
				})
				if err != nil {
					return err
				}
				if err := a.sessions.EmergencyOverride(ctx, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s ended by emergency override\n", cur.Session.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the session is being ended")
	return cmd
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				defs, err := a.sessions.Definitions(ctx)
				if err != nil {
					return err
				}
				tw := newTable("ID", "Name", "Type", "Length", "Schedule", "Allowlist", "Emergency", "Bricked")
				for _, s := range defs {
					length := "-"
					if s.DurationMinutes > 0 {
						length = s.Duration().String()
					}
					schedule := s.ScheduleID
					if schedule == "" {
						schedule = "-"
					}
					tw.AppendRow(table.Row{s.ID, s.Name, s.Type, length, schedule, formatList(s.Allowlist), s.AllowEmergencyOverride, s.IsCurrentlyBricked})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func sessionHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show session logs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessionID string
			if len(args) == 1 {
				sessionID = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				logs, err := a.sessions.Logs(ctx, sessionID)
				if err != nil {
					return err
				}
				tw := newTable("Session", "Started", "Planned", "Actual", "Status", "Bypass", "Essentials", "Reason")
				for _, l := range logs {
					started := l.StartedAt
					actual := "-"
					if l.EndedAt != nil {
						actual = l.ActualDuration.Round(time.Second).String()
					}
					reason := l.OverrideReason
					if reason == "" {
						reason = "-"
					}
					tw.AppendRow(table.Row{l.SessionID, formatTime(&started), l.ScheduledDuration, actual, l.Status, l.BypassAttempts, formatList(l.EssentialAccess), reason})
				}
				tw.Render()
				return nil
			})
		},
	}
}
