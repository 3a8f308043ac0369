// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xandeum/pmon/pkg/geo"
	"github.com/xandeum/pmon/pkg/logging"
	"github.com/xandeum/pmon/pkg/prober"
	"github.com/xandeum/pmon/pkg/syncer"
)

const (
	optionNameBootstrapURL       = "bootstrap-url"
	optionNameStatsPort          = "stats-port"
	optionNameSyncInterval       = "sync-interval"
	optionNameSyncInitialDelay   = "sync-initial-delay"
	optionNameSyncTimeout        = "sync-timeout"
	optionNameProbeConcurrency   = "probe-concurrency"
	optionNameProbeTimeout       = "probe-timeout"
	optionNameProbeAttempts      = "probe-attempts"
	optionNameStaleRetentionDays = "stale-retention-days"
	optionNameGeoEndpoint        = "geo-endpoint"
	optionNameGeoBatchSize       = "geo-batch-size"
	optionNameGeoBatchDelay      = "geo-batch-delay"
	optionNameGeoIPDBPath        = "geoip-db-path"
	optionNameDebugAPIEnable     = "debug-api-enable"
	optionNameDebugAPIAddr       = "debug-api-addr"
	optionCORSAllowedOrigins     = "cors-allowed-origins"
	optionNameVerbosity          = "verbosity"
	optionNameTracingEnabled     = "tracing-enable"
	optionNameTracingEndpoint    = "tracing-endpoint"
	optionNameTracingServiceName = "tracing-service-name"
)

const defaultBootstrapURL = "http://127.0.0.1:6000/rpc"

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string
	homeDir string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "pmon",
			Short:         "Xandeum pNode network monitor",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()

	if err := c.initStartCmd(); err != nil {
		return nil, err
	}

	if err := c.initPrintConfigCmd(); err != nil {
		return nil, err
	}

	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.pmon.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".pmon"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".pmon" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("pmon")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

func (c *command) setAllFlags(cmd *cobra.Command) {
	cmd.Flags().String(optionNameBootstrapURL, defaultBootstrapURL, "JSON-RPC endpoint of the bootstrap node that lists the network peers")
	cmd.Flags().Int(optionNameStatsPort, prober.DefaultPort, "port of the stats JSON-RPC endpoint on every peer")
	cmd.Flags().Duration(optionNameSyncInterval, syncer.DefaultInterval, "time between two sync cycles")
	cmd.Flags().Duration(optionNameSyncInitialDelay, syncer.DefaultInitialDelay, "time before the first sync cycle")
	cmd.Flags().Duration(optionNameSyncTimeout, syncer.DefaultTimeout, "deadline of a single sync cycle, 0 disables it")
	cmd.Flags().Int(optionNameProbeConcurrency, prober.DefaultConcurrency, "maximal number of peers probed at the same time")
	cmd.Flags().Duration(optionNameProbeTimeout, prober.DefaultTimeout, "timeout of a single stats call")
	cmd.Flags().Int(optionNameProbeAttempts, prober.DefaultRetryPolicy().MaxAttempts, "number of stats call attempts on transient errors")
	cmd.Flags().Int(optionNameStaleRetentionDays, int(syncer.DefaultStaleRetention.Hours()/24), "days after which peers that are not seen anymore are removed")
	cmd.Flags().String(optionNameGeoEndpoint, geo.DefaultEndpoint, "batch geolocation API endpoint")
	cmd.Flags().Int(optionNameGeoBatchSize, geo.DefaultBatchSize, "number of addresses in a single geolocation request")
	cmd.Flags().Duration(optionNameGeoBatchDelay, geo.DefaultBatchDelay, "minimal time between two geolocation requests, values below or equal to 0 use the default")
	cmd.Flags().String(optionNameGeoIPDBPath, "", "path to a MaxMind city database consulted before the geolocation API")
	cmd.Flags().Bool(optionNameDebugAPIEnable, false, "enable debug HTTP API")
	cmd.Flags().String(optionNameDebugAPIAddr, ":1635", "debug HTTP API listen address")
	cmd.Flags().StringSlice(optionCORSAllowedOrigins, []string{}, "origins with CORS headers enabled, only same-host origins when empty")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	cmd.Flags().Bool(optionNameTracingEnabled, false, "enable tracing")
	cmd.Flags().String(optionNameTracingEndpoint, "127.0.0.1:6831", "endpoint to send tracing data")
	cmd.Flags().String(optionNameTracingServiceName, "pmon", "service name identifier for tracing")
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	if level == logrus.PanicLevel {
		return logging.New(ioutil.Discard, 0), nil
	}
	return logging.New(cmd.OutOrStdout(), level), nil
}
