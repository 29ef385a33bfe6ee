package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-listener/wakelistener/internal/config"
	"github.com/good-listener/wakelistener/internal/grpcclient"
)

var (
	envFiles   []string
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "listener",
	Short: "Wake phrase triggered utterance recorder",
	Long: `Listens to the default microphone, waits for a wake phrase and
records the utterance that follows to a WAV file.

After each utterance a conversation window stays open so follow-up
speech is recorded without repeating the wake phrase.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and check the inference server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "config ok:", cfg)
		for _, p := range cfg.WakePhrases {
			fmt.Fprintf(out, "  wake phrase %s > %.2f\n", p.Name, p.Threshold)
		}

		gcfg := grpcclient.DefaultConfig()
		gcfg.SampleRate = cfg.SampleRate
		client, err := grpcclient.New(cfg.InferenceAddr, gcfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := client.Check(ctx); err != nil {
			return fmt.Errorf("inference server %s: %w", cfg.InferenceAddr, err)
		}
		fmt.Fprintln(out, "inference server serving:", cfg.InferenceAddr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load (missing files are skipped)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config overlay (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(checkCmd)
}

// loadConfig applies flag overrides on top of the environment.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
