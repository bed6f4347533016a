// File: cmd/process.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/internal/codecontext"
	"github.com/xkilldash9x/sast-agent/internal/config"
	"github.com/xkilldash9x/sast-agent/internal/findings"
	"github.com/xkilldash9x/sast-agent/internal/llmclient"
	"github.com/xkilldash9x/sast-agent/internal/observability"
	"github.com/xkilldash9x/sast-agent/internal/reporting"
	"github.com/xkilldash9x/sast-agent/internal/results"
	"github.com/xkilldash9x/sast-agent/internal/triage"
)

// processFlags holds the command-line overrides of the process command. Only
// flags the user actually set are applied.
type processFlags struct {
	findingsPath   string
	contextSource  string
	contextPath    string
	format         string
	output         string
	concurrency    int
	failClosed     bool
	unknownVerdict string
}

// newProcessCmd creates and configures the `process` command.
func newProcessCmd(root *rootOptions) *cobra.Command {
	flags := &processFlags{}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Validate, prioritize and remediate a batch of findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(root.v)
			if err != nil {
				return err
			}
			if err := applyProcessFlags(cmd.Flags(), flags, cfg); err != nil {
				return err
			}
			return runProcess(cmd.Context(), cfg, flags.findingsPath, observability.GetLogger())
		},
	}

	flags.register(processCmd.Flags())
	_ = processCmd.MarkFlagRequired("findings")

	return processCmd
}

func (f *processFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.findingsPath, "findings", "i", "", "Path to the findings JSON file.")
	fs.StringVar(&f.contextSource, "context-source", "", "Code context source: none, file, dir, git or github. (Overrides config/env)")
	fs.StringVar(&f.contextPath, "context-path", "", "Mapping file, directory or repository path for the context source.")
	fs.StringVarP(&f.format, "format", "f", "", "Report format: json, outcomes or sarif. (Overrides config/env)")
	fs.StringVarP(&f.output, "output", "o", "", "Report destination. Defaults to stdout. (Overrides config/env)")
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "Number of findings processed in parallel. (Overrides config/env)")
	fs.BoolVar(&f.failClosed, "fail-closed", false, "Abort the batch on the first completion service failure.")
	fs.StringVar(&f.unknownVerdict, "unknown-verdict", "", "Unclassifiable validations: drop or review. (Overrides config/env)")
}

// applyProcessFlags copies the flags the user set onto cfg and re-checks the
// sections they touched.
func applyProcessFlags(fs *pflag.FlagSet, flags *processFlags, cfg config.Interface) error {
	if fs.Changed("concurrency") {
		cfg.SetTriageConcurrency(flags.concurrency)
	}
	if fs.Changed("fail-closed") {
		mode := config.FailModeContinue
		if flags.failClosed {
			mode = config.FailModeFailClosed
		}
		cfg.SetTriageFailMode(mode)
	}
	if fs.Changed("unknown-verdict") {
		cfg.SetTriageUnknownVerdict(config.UnknownVerdictPolicy(flags.unknownVerdict))
	}

	if fs.Changed("context-source") || fs.Changed("context-path") {
		cc := cfg.Context()
		if fs.Changed("context-source") {
			cc.Source = config.ContextSource(flags.contextSource)
		}
		if fs.Changed("context-path") {
			switch cc.Source {
			case config.ContextSourceFile:
				cc.File = flags.contextPath
			case config.ContextSourceDir:
				cc.Dir = flags.contextPath
			case config.ContextSourceGit:
				cc.Git.Path = flags.contextPath
			default:
				return fmt.Errorf("--context-path has no meaning for context source %q", cc.Source)
			}
		}
		cfg.SetContextConfig(cc)
	}

	if fs.Changed("format") || fs.Changed("output") {
		oc := cfg.Output()
		if fs.Changed("format") {
			oc.Format = flags.format
		}
		if fs.Changed("output") {
			oc.Path = flags.output
		}
		cfg.SetOutputConfig(oc)
	}

	triageCfg := cfg.Triage()
	if err := triageCfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag override: %w", err)
	}
	contextCfg := cfg.Context()
	if err := contextCfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag override: %w", err)
	}
	return nil
}

// runProcess contains the testable business logic for the command: load,
// resolve context, run the pipeline, write the report.
func runProcess(ctx context.Context, cfg config.Interface, findingsPath string, logger *zap.Logger) error {
	batch, err := findings.Load(findingsPath)
	if err != nil {
		return err
	}
	logger.Info("Loaded findings", zap.String("path", findingsPath), zap.Int("count", len(batch)))

	provider, err := codecontext.New(ctx, cfg.Context(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize code context provider: %w", err)
	}
	if closer, ok := provider.(io.Closer); ok {
		defer closer.Close()
	}
	contexts, err := codecontext.Resolve(ctx, provider, batch, cfg.Triage().MaxSnippetBytes, logger)
	if err != nil {
		return fmt.Errorf("failed to resolve code context: %w", err)
	}

	llmClient, err := llmclient.NewClient(ctx, cfg.LLM(), cfg.Resilience(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	defer func() {
		if cerr := llmClient.Close(); cerr != nil {
			logger.Warn("Error closing LLM client", zap.Error(cerr))
		}
	}()

	triageCfg := cfg.Triage()
	pipeline := results.NewPipeline(
		triage.NewValidator(logger, llmClient, triageCfg),
		triage.NewAdvisor(logger, llmClient, triageCfg),
		triage.ParseVerdict,
		triageCfg,
		logger,
	)

	reporter, err := reporting.New(cfg.Output().Format, cfg.Output().Path, Version, logger)
	if err != nil {
		return err
	}

	report, err := pipeline.Process(ctx, batch, contexts)
	if err != nil {
		_ = reporter.Close()
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("processing aborted: %w", err)
		}
		return fmt.Errorf("processing failed: %w", err)
	}

	if err := reporter.Write(report); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}

	logger.Info("Processing complete",
		zap.String("run_id", report.RunID),
		zap.Int("findings", len(batch)),
		zap.Int("records", len(report.Records())),
		zap.Any("summary", report.Summary),
	)
	return nil
}
