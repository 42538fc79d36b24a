// Package commands implements the gitexporter command line.
package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/observability"
	"github.com/open-condo-software/gitexporter/pkg/replay"
	"github.com/open-condo-software/gitexporter/pkg/version"
)

type observabilityInit func(observability.Config) (observability.Providers, error)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	silent  bool
	noColor bool
	debug   bool
}

// RootCommand runs an export and hosts the subcommands.
type RootCommand struct {
	flags  *globalFlags
	initFn observabilityInit
}

// NewRootCommand creates the gitexporter command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithDeps(observability.Init)
}

func newRootCommandWithDeps(initFn observabilityInit) *cobra.Command {
	rc := &RootCommand{flags: &globalFlags{}, initFn: initFn}

	cmd := &cobra.Command{
		Use:   "gitexporter <config>",
		Short: "Replay a filtered view of a git history into another repository",
		Long: `gitexporter replays the mainline history of a source repository into a
target repository, keeping only the paths allowed by the configuration.

Subsequent runs resume from the export log or from the number of commits
already present in the target.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          rc.run,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if rc.flags.noColor {
				color.NoColor = true
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&rc.flags.silent, "silent", false, "Disable progress output")
	cmd.PersistentFlags().BoolVar(&rc.flags.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&rc.flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newVerifyCommand(rc.flags, initFn))
	cmd.AddCommand(newLogCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (rc *RootCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(args[0])
	if err != nil {
		return err
	}

	providers, err := rc.initFn(observabilityConfig(cfg, observability.ModeExport, rc.flags.debug, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer shutdown(providers)

	var metrics *observability.ReplayMetrics

	if providers.Meter != nil {
		metrics, err = observability.NewReplayMetrics(providers.Meter)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()

	session, err := replay.Prepare(ctx, cfg, providers.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	opts := replay.OptionsFromConfig(cfg)
	opts.Logger = providers.Logger
	opts.Tracer = providers.Tracer
	opts.Metrics = metrics

	if !rc.flags.silent {
		opts.Progress = replay.NewProgress(cmd.ErrOrStderr(), !color.NoColor, !cfg.DontShowTiming)
	}

	stats, err := replay.NewEngine(session, opts).Run(ctx)
	if err != nil {
		return err
	}

	if !rc.flags.silent {
		renderSummary(cmd.OutOrStdout(), stats, !cfg.DontShowTiming)
	}

	return nil
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode, debug bool, out io.Writer) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.OTLPInsecure
	obsCfg.MetricsAddr = cfg.MetricsAddr
	obsCfg.LogJSON = cfg.LogJSON
	obsCfg.LogOutput = out

	if debug || cfg.Debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	return obsCfg
}

func shutdown(providers observability.Providers) {
	if providers.Shutdown == nil {
		return
	}

	err := providers.Shutdown(context.Background())
	if err != nil && providers.Logger != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}
