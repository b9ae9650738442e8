package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/policy"
)

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "block", Short: "Manage ad-hoc blocks"}
	cmd.AddCommand(blockAddCmd())
	cmd.AddCommand(blockRemoveCmd())
	cmd.AddCommand(blockListCmd())
	cmd.AddCommand(blockPresetCmd())
	return cmd
}

func blockAddCmd() *cobra.Command {
	var kind, challenge string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "add <identifier>",
		Short: "Block an app package or website",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			c, err := parseChallenge(challenge)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				item, err := a.blocks.Add(ctx, args[0], k, c, ttl)
				if err != nil {
					return err
				}
				fmt.Printf("Blocked %s %s (unlock: %s, expires: %s)\n",
					item.Kind, item.Identifier, item.Challenge, formatTime(item.ExpiresAt))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	cmd.Flags().StringVar(&challenge, "challenge", "wait:5", "unlock challenge (wait:<minutes> or tap:<count>)")
	cmd.Flags().DurationVar(&ttl, "for", 0, "block duration (0 blocks permanently)")
	return cmd
}

func blockRemoveCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "remove <identifier>",
		Short: "Remove an ad-hoc block without a challenge",
		Long: `Removes an ad-hoc block outright. Use 'brickmon unlock' to go through the
block's challenge instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.blocks.Remove(ctx, args[0], k); err != nil {
					return err
				}
				fmt.Printf("Removed block on %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	return cmd
}

func blockListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ad-hoc blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				items, err := a.blocks.List(ctx)
				if err != nil {
					return err
				}
				tw := newTable("Identifier", "Kind", "Challenge", "Created", "Expires")
				for _, it := range items {
					created := it.CreatedAt
					tw.AppendRow(table.Row{it.Identifier, it.Kind, it.Challenge, formatTime(&created), formatTime(it.ExpiresAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func blockPresetCmd() *cobra.Command {
	var challenge string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "preset [preset-id]",
		Short: "Block every identifier of a built-in preset (lists presets without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				tw := newTable("ID", "Name", "Apps", "Websites")
				for _, id := range policy.PresetIDs() {
					p, _ := policy.LookupPreset(id)
					tw.AppendRow(table.Row{p.ID(), p.Name(), formatList(p.Apps()), formatList(p.Websites())})
				}
				tw.Render()
				return nil
			}
			p, err := lookupPreset(args[0])
			if err != nil {
				return err
			}
			c, err := parseChallenge(challenge)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				added := 0
				for _, spec := range goalItemSpecs(p.Apps(), p.Websites()) {
					_, err := a.blocks.Add(ctx, spec.Identifier, spec.Kind, c, ttl)
					if errors.Is(err, domain.ErrAlreadyBlocked) {
						continue
					}
					if err != nil {
						return err
					}
					added++
				}
				fmt.Printf("Preset %s: %d new blocks\n", p.Name(), added)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&challenge, "challenge", "wait:5", "unlock challenge (wait:<minutes> or tap:<count>)")
	cmd.Flags().DurationVar(&ttl, "for", 0, "block duration (0 blocks permanently)")
	return cmd
}

func lookupPreset(id string) (policy.BlockPreset, error) {
	p, ok := policy.LookupPreset(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidDefinition, id)
	}
	return p, nil
}
