package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/internal/config"
	"github.com/vantrace/ferret-cli/internal/engine"
	"github.com/vantrace/ferret-cli/internal/observability"
	"github.com/vantrace/ferret-cli/internal/orchestrator"
	"github.com/vantrace/ferret-cli/internal/query"
	"github.com/vantrace/ferret-cli/internal/realtime"
	"github.com/vantrace/ferret-cli/internal/reporting"
	"github.com/vantrace/ferret-cli/internal/runners"
)

// newInvestigateCmd creates and configures the `investigate` command.
func newInvestigateCmd() *cobra.Command {
	investigateCmd := &cobra.Command{
		Use:   "investigate [query...]",
		Short: "Runs the pipeline sequence against a natural-language query",
		Long: `Parses the query into targets and pipeline kinds, runs every selected
pipeline in order and prints the investigation summary. Stage failures are
isolated: the remaining pipelines still run and the report covers all of them.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("report.format", cmd.Flags().Lookup("format")); err != nil {
				return err
			}
			if err := viper.BindPFlag("channel.endpoint", cmd.Flags().Lookup("channel")); err != nil {
				return err
			}
			return viper.BindPFlag("engine.stage_timeout", cmd.Flags().Lookup("stage-timeout"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			queryText := strings.Join(args, " ")
			structured := query.Parse(queryText)
			logger.Info("query parsed",
				zap.Strings("targets", structured.Targets),
				zap.Int("pipelines", len(structured.PipelineKinds)))

			executor, err := engine.New(cfg.Engine, logger, runners.NewRegistry(logger))
			if err != nil {
				return err
			}
			channel := realtime.ForConfig(cfg.Channel, logger)
			session, err := orchestrator.New(logger, executor, channel)
			if err != nil {
				return err
			}

			snap, err := session.Start(ctx, structured)
			if err != nil {
				return fmt.Errorf("starting investigation: %w", err)
			}
			logger.Info("investigation running", zap.String("investigation_id", snap.ID))

			session.Wait()

			current, err := session.Current()
			if err != nil {
				return err
			}
			summary, err := session.Summary()
			if err != nil {
				return err
			}

			output := viper.GetString("output")
			rep, err := reporting.New(cfg.Report.Format, output)
			if err != nil {
				return err
			}
			defer rep.Close()
			if err := rep.Write(current, summary); err != nil {
				return err
			}
			if output != "" && output != "stdout" {
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
			}

			// Stage failures are part of the report, not a process failure.
			for _, p := range current.Pipelines {
				if p.ErrorMessage != "" {
					logger.Warn("pipeline failed",
						zap.String("pipeline", string(p.ID)),
						zap.String("error", p.ErrorMessage))
				}
			}
			return nil
		},
	}

	investigateCmd.Flags().StringP("output", "o", "", "report destination path (default stdout)")
	investigateCmd.Flags().StringP("format", "f", "", "report format: json or text")
	investigateCmd.Flags().String("channel", "", "realtime channel websocket endpoint")
	investigateCmd.Flags().Duration("stage-timeout", 0, "per-stage timeout (0 disables)")

	// The output path is only consumed here, a plain viper key is enough.
	_ = viper.BindPFlag("output", investigateCmd.Flags().Lookup("output"))

	return investigateCmd
}
