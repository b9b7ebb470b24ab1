// Command biostream bridges an EEG headset session to three outbound streams:
// raw EEG, facial expression flags, and performance metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/biostream/internal/acquire"
	"github.com/banshee-data/biostream/internal/config"
	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := Main(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// Main runs the command line with the given arguments and streams. A failed
// device connection is reported by the run command itself; every other error
// is printed here.
func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, acquire.ErrConnect) {
		fmt.Fprintf(errOut, "biostream: %v\n", err)
	}
	return err
}

type rootFlags struct {
	configPath string
	debug      bool
}

// loadConfig reads the file named by --config, or returns an empty config.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	if f.configPath == "" {
		return config.Empty(), nil
	}
	return config.Load(f.configPath)
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "biostream",
		Short:         "EEG headset stream bridge",
		Long:          `biostream reads an EEG headset session and republishes raw samples, facial expression flags and performance metrics as three outbound streams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (.json, .yaml or .yml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger, err := monitoring.NewLogger(flags.debug)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		monitoring.UseZap(logger)
		return nil
	}

	root.AddCommand(NewRunCmd(&flags))
	root.AddCommand(NewCatalogCmd(&flags))
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewVersionCmd())
	return root
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "biostream %s (commit %s, built %s)\n",
				version.Version, version.GitSHA, version.BuildTime)
			return nil
		},
	}
}
