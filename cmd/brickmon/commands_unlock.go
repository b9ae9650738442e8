package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
)

func unlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Work through a block's challenge",
		Long: `Unlocking runs the challenge of the block that wins for an identifier.
Wait challenges start a timer that survives restarts; come back with
'unlock continue' once it has run out. Tap challenges are completed on the
spot by pressing Enter once per tap.`,
	}
	cmd.AddCommand(unlockRequestCmd())
	cmd.AddCommand(unlockStatusCmd())
	cmd.AddCommand(unlockContinueCmd())
	cmd.AddCommand(unlockCancelCmd())
	return cmd
}

// resolveBlocked returns the winning block for identifier.
func resolveBlocked(ctx context.Context, a *app, identifier string, kind domain.ItemKind) (*domain.BlockDecision, error) {
	d := a.registry.Resolve(ctx, identifier, kind)
	if d == nil {
		return nil, fmt.Errorf("%w: %s is not blocked", domain.ErrNotFound, identifier)
	}
	return d, nil
}

func unlockMode(permanent bool) usecase.UnlockMode {
	if permanent {
		return usecase.UnlockPermanent
	}
	return usecase.UnlockTemporary
}

func unlockRequestCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "request <identifier>",
		Short: "Start the unlock challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				d, err := resolveBlocked(ctx, a, args[0], k)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s is blocked by %s %s (%s)\n", d.Identifier, d.Source, d.DisplayName, d.Challenge)

				switch d.Challenge.Kind {
				case domain.ChallengeWait:
					state, err := a.challenges.StartWait(ctx, d.Identifier, d.Challenge.WaitMinutes)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Wait timer running: %s left\n", state.Remaining(a.clock.Now()).Round(time.Second))
					fmt.Fprintf(out, "Run 'brickmon unlock continue %s' when it ends.\n", args[0])
					return nil

				case domain.ChallengeTap:
					counter := a.challenges.BeginTap(d.Identifier, d.Challenge.TapCount)
					err := runTaps(cmd.InOrStdin(), out, counter.Remaining(), func() (int, bool, error) {
						return a.challenges.Tap(ctx, *d)
					})
					if err != nil {
						a.challenges.CancelTap(d.Identifier)
						return err
					}
					fmt.Fprintf(out, "%s unlocked for %s\n", d.Identifier, a.cfg.Challenge.TemporaryUnlock.D())
					return nil
				}
				return fmt.Errorf("%w: %s", domain.ErrInvalidChallenge, d.Challenge)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	return cmd
}

func unlockStatusCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "status <identifier>",
		Short: "Show the wait timer and unlock state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				id := domain.NormalizeIdentifier(args[0], k)
				now := a.clock.Now()
				if u, err := a.store.ActiveUnlock(ctx, id, now); err == nil && u != nil {
					fmt.Printf("%s is unlocked until %s\n", id, u.ExpiresAt.Local().Format(timeLayout))
					return nil
				}
				d := a.registry.Resolve(ctx, id, k)
				if d == nil {
					fmt.Printf("%s is not blocked\n", id)
					return nil
				}
				remaining, running, err := a.challenges.WaitStatus(ctx, d.Identifier)
				if err != nil {
					return err
				}
				switch {
				case !running:
					fmt.Printf("%s is blocked (%s); no challenge in progress\n", id, d.Challenge)
				case remaining > 0:
					fmt.Printf("%s: %s left on the wait timer\n", id, remaining.Round(time.Second))
				default:
					fmt.Printf("%s: wait timer done, run 'brickmon unlock continue %s'\n", id, args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	return cmd
}

func unlockContinueCmd() *cobra.Command {
	var kind string
	var permanent bool
	cmd := &cobra.Command{
		Use:   "continue <identifier>",
		Short: "Finish a wait challenge whose timer has run out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				d, err := resolveBlocked(ctx, a, args[0], k)
				if err != nil {
					return err
				}
				if err := a.challenges.CompleteWait(ctx, *d, unlockMode(permanent)); err != nil {
					return err
				}
				if permanent && d.Source == domain.SourceAdHoc {
					fmt.Printf("Block on %s removed\n", d.Identifier)
				} else {
					fmt.Printf("%s unlocked for %s\n", d.Identifier, a.cfg.Challenge.TemporaryUnlock.D())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove an ad-hoc block instead of unlocking it temporarily")
	return cmd
}

func unlockCancelCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "cancel <identifier>",
		Short: "Discard a running wait timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				id := domain.NormalizeIdentifier(args[0], k)
				if d := a.registry.Resolve(ctx, id, k); d != nil {
					id = d.Identifier
				}
				if err := a.challenges.CancelWait(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Wait timer for %s cancelled\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "app", "app or website")
	return cmd
}
