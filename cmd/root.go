// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"fmt"
	"os"

	"github.com/axia-network/axia-launch/cmd/launch"
	"github.com/spf13/cobra"
)

var Version = ""

var rootCmd = &cobra.Command{
	Use:           "axia-launch",
	Short:         "axia-launch commands",
	SuggestFor:    []string{"launch"},
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.EnablePrefixMatching = true
}

func init() {
	rootCmd.AddCommand(
		launch.NewRelayCommand(),
		launch.NewAllychainsCommand(),
		launch.NewRunCommand(),
	)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "axia-launch failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}
