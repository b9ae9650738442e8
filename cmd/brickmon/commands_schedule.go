package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "schedule", Short: "Manage recurring time-window blocks"}
	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleRemoveCmd())
	cmd.AddCommand(scheduleListCmd())
	return cmd
}

func scheduleAddCmd() *cobra.Command {
	var (
		start, end, days, kind, challenge, sessionType string
		identifiers, allow                             []string
		wholeDevice, emergency, disabled               bool
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a schedule",
		Long: `Adds a recurring window. With --whole-device the window starts a brick
session; otherwise the listed identifiers are blocked while it is open.
An end time at or before the start time wraps past midnight.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched := domain.Schedule{
				Name:                   args[0],
				Identifiers:            identifiers,
				WholeDevice:            wholeDevice,
				AllowEmergencyOverride: emergency,
				Allowlist:              allow,
				Enabled:                !disabled,
			}
			var err error
			if sched.StartHour, sched.StartMinute, err = parseClock(start); err != nil {
				return err
			}
			if sched.EndHour, sched.EndMinute, err = parseClock(end); err != nil {
				return err
			}
			if sched.ActiveDays, err = parseDays(days); err != nil {
				return err
			}
			if sched.Challenge, err = parseChallenge(challenge); err != nil {
				return err
			}
			if !wholeDevice {
				if sched.Kind, err = parseKind(kind); err != nil {
					return err
				}
			} else if cmd.Flags().Changed("session-type") {
				if sched.SessionType, err = parseSessionType(sessionType); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				saved, err := a.schedules.Save(ctx, sched)
				if err != nil {
					return err
				}
				fmt.Printf("Schedule %s saved (%s), %s on %s\n", saved.Name, saved.ID, saved.WindowString(), saved.ActiveDays)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "22:00", "window start (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "07:00", "window end (HH:MM)")
	cmd.Flags().StringVar(&days, "days", "every", "active days: every, weekdays, weekends or mon,tue,...")
	cmd.Flags().StringVar(&kind, "kind", "app", "kind of the listed identifiers (app or website)")
	cmd.Flags().StringSliceVar(&identifiers, "block", nil, "identifier to block during the window (repeatable)")
	cmd.Flags().BoolVar(&wholeDevice, "whole-device", false, "start a brick session for the window")
	cmd.Flags().StringVar(&sessionType, "session-type", "sleep", "session type for whole-device schedules")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "package allowed during the session (repeatable)")
	cmd.Flags().BoolVar(&emergency, "allow-emergency", false, "permit emergency override of the session")
	cmd.Flags().StringVar(&challenge, "challenge", "wait:10", "unlock challenge (wait:<minutes> or tap:<count>)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "save without enabling")
	return cmd
}

func scheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <schedule-id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.schedules.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted schedule %s\n", args[0])
				return nil
			})
		},
	}
}

func scheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				schedules, err := a.schedules.List(ctx)
				if err != nil {
					return err
				}
				now := a.clock.Now()
				tw := newTable("ID", "Name", "Window", "Days", "Blocks", "Enabled", "Open now")
				for _, s := range schedules {
					blocks := formatList(s.Identifiers)
					if s.WholeDevice {
						blocks = "whole device (" + strings.ToLower(string(s.SessionType)) + ")"
					}
					tw.AppendRow(table.Row{s.ID, s.Name, s.WindowString(), s.ActiveDays, blocks, s.Enabled, s.ActiveAt(now)})
				}
				tw.Render()
				return nil
			})
		},
	}
}
