package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/observability"
	"github.com/open-condo-software/gitexporter/pkg/replay"
)

func newVerifyCommand(flags *globalFlags, initFn observabilityInit) *cobra.Command {
	var lineDiffs bool

	cmd := &cobra.Command{
		Use:   "verify <config>",
		Short: "Compare the target HEAD with the filtered source HEAD",
		Long: `Compare the tree of the target HEAD with the tree of the source HEAD
after applying the configured path rules. Missing, extra and changed paths
are reported and the command fails when any difference is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return err
			}

			providers, err := initFn(observabilityConfig(cfg, observability.ModeVerify, flags.debug, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer shutdown(providers)

			tracer := providers.Tracer
			if tracer == nil {
				tracer = nooptrace.NewTracerProvider().Tracer("gitexporter")
			}

			ctx, span := tracer.Start(cmd.Context(), "gitexporter.verify")
			defer span.End()

			source, err := gitlib.OpenRepository(cfg.SourceRepoPath)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer source.Free()

			target, err := gitlib.OpenRepository(cfg.TargetRepoPath)
			if err != nil {
				return fmt.Errorf("open target: %w", err)
			}
			defer target.Free()

			report, err := replay.Verify(ctx, source, target, replay.OptionsFromConfig(cfg).Rules, lineDiffs)
			if err != nil {
				return err
			}

			if !flags.silent || len(report.Mismatches) > 0 {
				renderReport(cmd.OutOrStdout(), report, lineDiffs)
			}

			return report.Err()
		},
	}

	cmd.Flags().BoolVar(&lineDiffs, "diff", false, "Print line diffs of changed files")

	return cmd
}
