package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
)

func goalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Manage long-term goals",
		Long: `A goal blocks its items for a number of days. Items can be added to a
running goal but never removed, and the goal can only be deleted after it ends.`,
	}
	cmd.AddCommand(goalCreateCmd())
	cmd.AddCommand(goalAddCmd())
	cmd.AddCommand(goalRemoveCmd())
	cmd.AddCommand(goalDeleteCmd())
	cmd.AddCommand(goalListCmd())
	return cmd
}

func goalItemSpecs(apps, websites []string) []usecase.GoalItemSpec {
	specs := make([]usecase.GoalItemSpec, 0, len(apps)+len(websites))
	for _, a := range apps {
		specs = append(specs, usecase.GoalItemSpec{Identifier: a, Kind: domain.KindApp})
	}
	for _, w := range websites {
		specs = append(specs, usecase.GoalItemSpec{Identifier: w, Kind: domain.KindWebsite})
	}
	return specs
}

func goalCreateCmd() *cobra.Command {
	var days int
	var challenge string
	var apps, websites, presets []string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Start a goal now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseChallenge(challenge)
			if err != nil {
				return err
			}
			specs := goalItemSpecs(apps, websites)
			for _, id := range presets {
				p, err := lookupPreset(id)
				if err != nil {
					return err
				}
				specs = append(specs, goalItemSpecs(p.Apps(), p.Websites())...)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				g, err := a.goals.Create(ctx, args[0], days, c, specs...)
				if err != nil {
					return err
				}
				fmt.Printf("Goal %s created (%s), ends %s with %d items\n",
					g.Name, g.ID, g.EndsAt().Local().Format(timeLayout), len(g.Items))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "goal length in days")
	cmd.Flags().StringVar(&challenge, "challenge", "wait:15", "unlock challenge (wait:<minutes> or tap:<count>)")
	cmd.Flags().StringSliceVar(&apps, "app", nil, "app package to block (repeatable)")
	cmd.Flags().StringSliceVar(&websites, "website", nil, "website to block (repeatable)")
	cmd.Flags().StringSliceVar(&presets, "preset", nil, "built-in preset to include (repeatable)")
	return cmd
}

func goalAddCmd() *cobra.Command {
	var kind, name string
	cmd := &cobra.Command{
		Use:   "add <goal-id> <identifier>",
		Short: "Add an item to a running goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				item, err := a.goals.AddItem(ctx, args[0], usecase.GoalItemSpec{
					Identifier: args[1], Kind: k, DisplayName: name,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Added %s %s to goal %s\n", item.Kind, item.Identifier, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func goalRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <goal-id> <item-id>",
		Short: "Remove an item from a goal (always refused)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return a.goals.RemoveItem(ctx, args[0], args[1])
			})
		},
	}
}

func goalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <goal-id>",
		Short: "Delete a goal that has ended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.goals.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted goal %s\n", args[0])
				return nil
			})
		},
	}
}

func goalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List goals and their items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				goals, err := a.goals.List(ctx)
				if err != nil {
					return err
				}
				now := a.clock.Now()
				tw := newTable("ID", "Name", "Ends", "State", "Challenge", "Items")
				for _, g := range goals {
					state := "active"
					if g.IsOver(now) {
						state = "ended"
					}
					ids := make([]string, 0, len(g.Items))
					for _, it := range g.Items {
						ids = append(ids, it.Identifier)
					}
					ends := g.EndsAt()
					tw.AppendRow(table.Row{g.ID, g.Name, formatTime(&ends), state, g.Challenge, formatList(ids)})
				}
				tw.Render()
				return nil
			})
		},
	}
}
