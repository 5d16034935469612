package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sketchgen/internal/adapter/repo"
	"sketchgen/internal/budget"
	"sketchgen/internal/generation"
	"sketchgen/internal/infra"
	"sketchgen/internal/infra/credentials"
	"sketchgen/internal/lifecycle"
	"sketchgen/internal/providers"
)

func init() {
	credentialsCmd.AddCommand(setCredentialCmd)
	setCredentialCmd.Flags().StringP("provider", "p", "", "provider id (qwen, openai, gemini)")
	setCredentialCmd.Flags().StringP("key", "k", "", "API key; read from the provider's environment variable when empty")
	_ = setCredentialCmd.MarkFlagRequired("provider")

	jobsCmd.AddCommand(cancelJobCmd, purgeJobsCmd)
	purgeJobsCmd.Flags().Duration("older-than", 0, "retention window; defaults to JOB_RETENTION_HOURS")
	assetsCmd.AddCommand(getAssetCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		return infra.Migrate(cfg.DatabaseURL, infra.NewLogger(cfg.AppEnv, ""))
	},
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show this month's generation spend against the budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		guardian := budget.NewGuardian(repo.NewBillingRepository(e.sql), budget.Options{
			LimitCents: e.cfg.MonthlyBudgetCents,
			Logger:     e.logger,
		})
		info, err := guardian.Status(ctx)
		if err != nil {
			return fmt.Errorf("read budget: %w", err)
		}
		return printJSON(info)
	},
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored provider API keys",
}

var setCredentialCmd = &cobra.Command{
	Use:   "set",
	Short: "Store an API key for a provider",
	Long:  "Store an API key in integration_tokens. Keys in the environment still take precedence at runtime.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		providerFlag, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")

		id, ok := providers.ParseID(providerFlag)
		if !ok {
			return fmt.Errorf("unknown provider %q", providerFlag)
		}
		if c, _ := providers.Lookup(id); !c.RequiresCredential {
			return fmt.Errorf("provider %q does not use an API key", id)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		key = strings.TrimSpace(key)
		if key == "" {
			key = envKey(e.cfg, id)
		}
		if key == "" {
			return fmt.Errorf("%s API key is required via --key or environment", strings.ToUpper(string(id)))
		}
		if err := credentials.NewStore(e.sql).SetToken(ctx, string(id), key); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s API key\n", id)
		return nil
	},
}

func envKey(cfg *infra.Config, id providers.ID) string {
	switch id {
	case providers.Qwen:
		return cfg.QwenAPIKey
	case providers.OpenAI:
		return cfg.OpenAIAPIKey
	case providers.Gemini:
		return cfg.GeminiAPIKey
	default:
		return ""
	}
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control generation jobs",
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel JOB_ID",
	Short: "Cancel a queued job, or ask a running one to stop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := statusService(e).Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"job_id": args[0], "asset_id": res.AssetID, "outcome": string(res.Outcome)})
	},
}

var purgeJobsCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete done and dead jobs past the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		retention, _ := cmd.Flags().GetDuration("older-than")
		if retention <= 0 {
			retention = e.cfg.JobRetention()
		}
		n, err := repo.NewJobQueue(e.sql).Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"purged": n, "retention": retention.String()})
	},
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Inspect generated assets",
}

var getAssetCmd = &cobra.Command{
	Use:   "get ASSET_ID",
	Short: "Print an asset record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		asset, err := statusService(e).GetStatus(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(asset)
	},
}

// statusService wires the parts of the generation service that cancel and status need.
// Submission is not available from the CLI.
func statusService(e *env) *generation.Service {
	machine := lifecycle.NewMachine(repo.NewAssetRepository(e.sql), e.logger)
	return generation.NewService(generation.Config{}, generation.Deps{
		Assets: machine,
		Queue:  repo.NewJobQueue(e.sql),
		Logger: e.logger,
	})
}
