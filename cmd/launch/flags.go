// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launch

import (
	"strings"
	"time"

	"github.com/axia-network/axia-launch/local"
	"github.com/axia-network/axia-launch/rpc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	logLevelKey     = "log-level"
	specDirKey      = "spec-dir"
	logDirKey       = "log-dir"
	readyTimeoutKey = "ready-timeout"
	txTimeoutKey    = "tx-timeout"
	metricsFileKey  = "metrics-file"
	waitKey         = "wait"

	envPrefix = "axia_launch"
)

func addFlags(fs *pflag.FlagSet) {
	fs.String(logLevelKey, "info", "log level for launcher logs")
	fs.String(specDirKey, "", "directory chain specs are written to (default: working directory)")
	fs.String(logDirKey, "", "directory node logs are written to (default: working directory)")
	fs.Duration(readyTimeoutKey, local.DefaultReadyTimeout, "how long to wait for a node to accept websocket connections")
	fs.Duration(txTimeoutKey, rpc.DefaultTxTimeout, "how long to wait for a transaction to be included")
	fs.String(metricsFileKey, "", "write launch metrics in the prometheus text format to this file")
	fs.Bool(waitKey, false, "keep running after the launch and stop the started nodes on SIGINT or SIGTERM")
}

// buildViper binds [fs] to a viper instance that also reads
// AXIA_LAUNCH_* environment variables. Explicitly set flags win.
func buildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(envPrefix)
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

type options struct {
	logLevel     string
	specDir      string
	logDir       string
	readyTimeout time.Duration
	txTimeout    time.Duration
	metricsFile  string
	wait         bool
}

func getOptions(v *viper.Viper) options {
	return options{
		logLevel:     v.GetString(logLevelKey),
		specDir:      v.GetString(specDirKey),
		logDir:       v.GetString(logDirKey),
		readyTimeout: v.GetDuration(readyTimeoutKey),
		txTimeout:    v.GetDuration(txTimeoutKey),
		metricsFile:  v.GetString(metricsFileKey),
		wait:         v.GetBool(waitKey),
	}
}
