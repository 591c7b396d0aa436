// Package app assembles the control daemon command.
package app

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tellolink/tellolink/cmd/tlink-controld/app/options"
	"github.com/tellolink/tellolink/pkg/log"
)

const (
	configFlagName = "config"
	envPrefix      = "TLINK"
)

// NewCommand creates the tlink-controld root command.
func NewCommand() *cobra.Command {
	opts := options.NewServerOptions()

	cmd := &cobra.Command{
		Use:   "tlink-controld",
		Short: "The drone control daemon",
		Long: `tlink-controld owns the single control session to the drone and
exposes it over HTTP. The drone accepts exactly one controlling socket,
so every client talks to this daemon rather than to the drone directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, opts); err != nil {
				return err
			}

			log.Init(opts.Log)

			if err := opts.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.String(configFlagName, "", "Path to the configuration file (yaml/json/toml).")
	opts.Flags(fs)

	return cmd
}

func run(ctx context.Context, opts *options.ServerOptions) error {
	cfg := opts.Config()
	cfg.Logger = log.Std()

	server, err := cfg.New()
	if err != nil {
		return err
	}

	return server.Run(ctx)
}

// loadConfig merges the configuration file, environment variables
// (TLINK_ prefixed), and command-line flags into opts; flags win.
func loadConfig(cmd *cobra.Command, opts *options.ServerOptions) error {
	v := viper.New()

	if cfgFile, _ := cmd.Flags().GetString(configFlagName); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	return v.Unmarshal(opts)
}
