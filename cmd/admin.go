package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/app"
	httpMW "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/middleware"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/resolver"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage <org-id>",
		Short: "Show the token budget of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid org id: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				u, err := a.Services.Budget.Usage(dbctx.Context{Ctx: cmd.Context()}, orgID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(u)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Used", "Limit", "Remaining", "Bonus", "% Used", "Resets"})
				tw.AppendRow(table.Row{u.Used, u.Limit, u.Remaining, u.Bonus, fmt.Sprintf("%.1f", u.PercentUsed), u.ResetDate.Format(time.DateOnly)})
				tw.Render()
				return nil
			})
		},
	}
}

func resolveCmd() *cobra.Command {
	var in resolver.Input
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the effective provider, model and tuning for a stage run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Provider == "" {
				in.Provider = cfg.DefaultProvider
			}
			if in.Preset == "" {
				in.Preset = cfg.DefaultPreset
			}
			return printJSON(resolver.Resolve(in))
		},
	}
	cmd.Flags().StringVar(&in.StageKey, "stage", "", "stage key")
	cmd.Flags().StringVar(&in.Preset, "preset", "", "fast, balanced or quality")
	cmd.Flags().StringVar(&in.Provider, "provider", "", "openai, anthropic, gemini or mock")
	cmd.Flags().StringVar(&in.Model, "model", "", "model override")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	var in services.NewOrganization
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an organization with a monthly token budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				o, err := a.Services.Projects.CreateOrganization(dbctx.Context{Ctx: cmd.Context()}, in)
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "organization name")
	create.Flags().StringVar(&in.Plan, "plan", "", "plan label")
	create.Flags().Int64Var(&in.MonthlyTokenLimit, "limit", services.DefaultMonthlyTokenLimit, "monthly token limit")
	create.Flags().Int64Var(&in.BonusTokens, "bonus", 0, "bonus tokens")
	_ = create.MarkFlagRequired("name")
	org.AddCommand(create)
	return org
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	var (
		org, user, name, kind string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project and bootstrap its stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(org)
			if err != nil {
				return fmt.Errorf("invalid org id: %w", err)
			}
			userID, err := parseOptionalUUID(user, "user")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				p, stages, err := a.Services.Projects.CreateProject(dbctx.Context{Ctx: cmd.Context()}, orgID, userID, name, kind)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"project": p, "stages": stages})
			})
		},
	}
	create.Flags().StringVar(&org, "org", "", "organization id")
	create.Flags().StringVar(&user, "user", "", "creating user id")
	create.Flags().StringVar(&name, "name", "", "project name")
	create.Flags().StringVar(&kind, "kind", "", "project kind (default venture)")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("name")
	prj.AddCommand(create)
	return prj
}

func tokenCmd() *cobra.Command {
	var (
		user, org, role string
		ttl             time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token with JWT_SECRET_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			orgID, err := uuid.Parse(org)
			if err != nil {
				return fmt.Errorf("invalid org id: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.AccessTokenTTL
			}
			token, err := httpMW.SignToken(cfg.JWTSecretKey, userID, orgID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&role, "role", "member", "member or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default ACCESS_TOKEN_TTL)")
	return cmd
}
