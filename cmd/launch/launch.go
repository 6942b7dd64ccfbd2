// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package launch implements the commands that launch a relay chain
// and its allychains from a network config file.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/axia-network/axia-launch/chainspec"
	"github.com/axia-network/axia-launch/launcher"
	"github.com/axia-network/axia-launch/local"
	"github.com/axia-network/axia-launch/network"
	"github.com/axia-network/axia-launch/pkg/color"
	"github.com/axia-network/axia-launch/pkg/logutil"
	"github.com/axia-network/axia-launch/rpc"
	"github.com/axia-network/axia-launch/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const stopTimeout = 30 * time.Second

type runFunc func(l *launcher.Launcher, ctx context.Context, config *network.Config) (*launcher.Result, error)

func NewRelayCommand() *cobra.Command {
	return newCommand(
		"relay [config]",
		"Build the relay chain spec and start the relay chain nodes.",
		(*launcher.Launcher).RunRelay,
	)
}

func NewAllychainsCommand() *cobra.Command {
	return newCommand(
		"allychains [config]",
		"Start the allychains of a config against its running relay chain.",
		(*launcher.Launcher).RunAllychains,
	)
}

func NewRunCommand() *cobra.Command {
	return newCommand(
		"run [config]",
		"Launch the relay chain and then its allychains.",
		(*launcher.Launcher).Run,
	)
}

func newCommand(use string, short string, run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	addFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := buildViper(cmd.Flags())
		if err != nil {
			return err
		}
		return launchFunc(getOptions(v), args[0], run)
	}
	return cmd
}

func launchFunc(opts options, configPath string, run runFunc) (err error) {
	log, err := logutil.NewLogger(opts.logLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := utils.WatchShutdownSignals(context.Background(), log)
	defer stop()

	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return err
	}
	config, err := network.LoadConfig(configPath)
	if err != nil {
		return err
	}
	specDir, err := resolveDir(opts.specDir)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	if opts.metricsFile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(opts.metricsFile, registry); werr != nil {
				err = multierr.Append(err, fmt.Errorf("couldn't write metrics: %w", werr))
			}
		}()
	}

	fs := afero.NewOsFs()
	l, err := launcher.New(launcher.Config{
		Log:       log,
		Fs:        fs,
		ConfigDir: filepath.Dir(configPath),
		SpecDir:   specDir,
		Tool:      chainspec.NewBinaryTool(log, fs),
		Nodes: local.NewNodeLauncher(log, local.Config{
			LogDir:       opts.logDir,
			ReadyTimeout: opts.readyTimeout,
		}),
		Dial:       rpc.NewDialer(log, rpc.Config{TxTimeout: opts.txTimeout}),
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	result, err := run(l, ctx, config)
	if err != nil {
		var launchErr *launcher.LaunchError
		if errors.As(err, &launchErr) {
			color.Redf("launch failed while %s\n", launchErr.State)
		}
		return err
	}
	printResult(result)

	if !opts.wait {
		return nil
	}
	log.Info("waiting for shutdown signal")
	<-ctx.Done()
	return stopProcesses(log, result.Processes)
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

func printResult(result *launcher.Result) {
	if result.RelaySpec != "" {
		color.Outf("{{bold}}relay chain spec:{{/}} %s\n", result.RelaySpec)
	}
	for _, proc := range result.Processes {
		color.Greenf("  %s (pid %d) logs: %s\n", proc.Name(), proc.Pid(), proc.LogPath())
	}
}

// stopProcesses stops [procs] in reverse start order.
func stopProcesses(log *zap.Logger, procs []local.NodeProcess) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var errs error
	for i := len(procs) - 1; i >= 0; i-- {
		proc := procs[i]
		log.Info("stopping node", zap.String("name", proc.Name()), zap.Int("pid", proc.Pid()))
		if err := proc.Stop(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("couldn't stop %s: %w", proc.Name(), err))
		}
	}
	return errs
}
