// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/internal/config"
	"github.com/xkilldash9x/sast-agent/internal/observability"
)

// envPrefix namespaces every configuration environment variable,
// e.g. SAST_AGENT_TRIAGE_CONCURRENCY.
const envPrefix = "SAST_AGENT"

// rootOptions is shared by the root command and its children. The viper
// instance is populated in PersistentPreRunE.
type rootOptions struct {
	cfgFile string
	envFile string
	v       *viper.Viper
}

// newRootCmd builds a fresh command tree. Tests call it directly so no state
// leaks between runs.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sast-agent",
		Short: "sast-agent validates, prioritizes and remediates SAST findings with an LLM.",
		Long: `sast-agent reads findings produced by a static analysis tool, asks a completion
service whether each one is real, ranks the confirmed ones by severity, exposure and
asset criticality, and drafts a fix for each of them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := initializeConfig(opts.cfgFile, opts.envFile)
			if err != nil {
				return err
			}
			opts.v = v

			var logCfg config.LoggerConfig
			if err := v.UnmarshalKey("logger", &logCfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sast-agent"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			observability.InitializeLogger(logCfg)
			observability.GetLogger().Debug("Starting sast-agent", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newProcessCmd(opts))
	rootCmd.AddCommand(newPrioritizeCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree under ctx. The caller owns the exit code.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig builds a viper instance from defaults, the config file and
// the environment, in increasing order of precedence. Variables from envFile
// never override ones already set in the environment.
func initializeConfig(cfgFile, envFile string) (*viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return v, nil
}
