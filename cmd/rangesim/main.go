// Command rangesim scrolls a simulated list through a range controller and
// prints every tier transition.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/henderiw/rangetable/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := getCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getCommand() *cobra.Command {
	v := viper.New()
	c := &cobra.Command{
		Use:          "rangesim",
		Short:        "simulate scrolling through tiered ranges",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, err := newLogger(v.GetString("log-level"))
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signal.NotifyContext(c.Context(), os.Interrupt)
			defer cancel()

			if addr := v.GetString("metrics-addr"); addr != "" {
				go func() {
					if err := metrics.Serve(ctx, addr, logger); err != nil {
						logger.Warn("metrics server stopped", zap.Error(err))
					}
				}()
			}

			sim, err := newSimulation(cfg, c.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			if err := sim.run(); err != nil {
				return err
			}
			if v.GetString("metrics-addr") != "" && v.GetBool("wait") {
				logger.Info("waiting for interrupt")
				<-ctx.Done()
			}
			return nil
		},
	}
	addFlags(c.PersistentFlags(), defaultSimConfig())
	if err := v.BindPFlags(c.PersistentFlags()); err != nil {
		panic(err)
	}
	return c
}

func addFlags(flags *pflag.FlagSet, cfg simConfig) {
	flags.StringP("config", "c", "", "load the simulation and range tiers from a yaml file")
	flags.String("log-level", "info", "log level")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.Bool("wait", false, "keep serving metrics after the simulation until interrupted")

	flags.Int("rows", cfg.Rows, "number of rows")
	flags.Int64("max-nodes", cfg.MaxNodes, "maximum number of registered rows, 0 for no limit")
	flags.Float64("row-height", cfg.RowHeight, "height of a row")
	flags.Int("header-every", cfg.HeaderEvery, "label every nth row as a header, 0 for none")
	flags.Float64("viewport-width", cfg.ViewportWidth, "viewport width")
	flags.Float64("viewport-height", cfg.ViewportHeight, "viewport height")
	flags.Float64("step", cfg.Step, "scroll distance per update")
	flags.Int("steps", cfg.Steps, "number of updates; the second half scrolls back")
	flags.String("index", cfg.Index, "membership index: grid or rtree")
	flags.Float64("cell-size", cfg.CellSize, "grid index cell size")
	flags.Bool("drop-headers", cfg.DropHeaders, "unregister header rows a quarter of the way through")
}

// loadConfig overlays the config file, if any, and then the flags on the
// defaults.
func loadConfig(v *viper.Viper) (simConfig, error) {
	cfg := defaultSimConfig()
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
		if v.IsSet("range.tiers") {
			cfg.Range.Tiers = nil
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core), nil
}
