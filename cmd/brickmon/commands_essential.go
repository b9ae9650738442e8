package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func essentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "essential",
		Short: "Manage apps allowed during every session",
	}
	cmd.AddCommand(essentialAddCmd())
	cmd.AddCommand(essentialRemoveCmd())
	cmd.AddCommand(essentialListCmd())
	return cmd
}

func essentialAddCmd() *cobra.Command {
	var name string
	var types []string
	cmd := &cobra.Command{
		Use:   "add <package>",
		Short: "Allow an app during sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionTypes, err := parseSessionTypes(types)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.essentials.Add(ctx, args[0], name, sessionTypes...); err != nil {
					return err
				}
				fmt.Printf("Essential app %s added\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&types, "session-type", nil, "limit to session types (repeatable; default all)")
	return cmd
}

func essentialRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <package>",
		Short: "Remove a user-added essential app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.essentials.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Essential app %s removed\n", args[0])
				return nil
			})
		},
	}
}

func essentialListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List essential apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				apps, err := a.essentials.List(ctx)
				if err != nil {
					return err
				}
				tw := newTable("Package", "Name", "Origin", "Sessions")
				for _, e := range apps {
					origin := "user"
					if e.IsSystemEssential {
						origin = "system"
					}
					sessions := "all"
					if len(e.AllowedSessionTypes) > 0 {
						names := make([]string, 0, len(e.AllowedSessionTypes))
						for _, t := range e.AllowedSessionTypes {
							names = append(names, strings.ToLower(string(t)))
						}
						sessions = strings.Join(names, ", ")
					}
					tw.AppendRow(table.Row{e.Package, e.Name, origin, sessions})
				}
				tw.Render()
				return nil
			})
		},
	}
}
