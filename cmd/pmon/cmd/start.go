// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xandeum/pmon"
	"github.com/xandeum/pmon/pkg/node"
)

// shutdownTimeout bounds the graceful shutdown of the node.
const shutdownTimeout = 15 * time.Second

func (c *command) initStartCmd() (err error) {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start syncing the pNode network",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return err
			}

			logger.Infof("version: %v", pmon.Version)

			debugAPIAddr := c.config.GetString(optionNameDebugAPIAddr)
			if !c.config.GetBool(optionNameDebugAPIEnable) {
				debugAPIAddr = ""
			}

			p, err := node.NewPmon(node.Options{
				BootstrapURL:       c.config.GetString(optionNameBootstrapURL),
				StatsPort:          c.config.GetInt(optionNameStatsPort),
				SyncInterval:       c.config.GetDuration(optionNameSyncInterval),
				SyncInitialDelay:   c.config.GetDuration(optionNameSyncInitialDelay),
				SyncTimeout:        c.config.GetDuration(optionNameSyncTimeout),
				StaleRetention:     time.Duration(c.config.GetInt(optionNameStaleRetentionDays)) * 24 * time.Hour,
				ProbeConcurrency:   c.config.GetInt(optionNameProbeConcurrency),
				ProbeTimeout:       c.config.GetDuration(optionNameProbeTimeout),
				ProbeAttempts:      c.config.GetInt(optionNameProbeAttempts),
				GeoEndpoint:        c.config.GetString(optionNameGeoEndpoint),
				GeoBatchSize:       c.config.GetInt(optionNameGeoBatchSize),
				GeoBatchDelay:      c.config.GetDuration(optionNameGeoBatchDelay),
				GeoIPDBPath:        c.config.GetString(optionNameGeoIPDBPath),
				DebugAPIAddr:       debugAPIAddr,
				CORSAllowedOrigins: c.config.GetStringSlice(optionCORSAllowedOrigins),
				Logger:             logger,
				TracingEnabled:     c.config.GetBool(optionNameTracingEnabled),
				TracingEndpoint:    c.config.GetString(optionNameTracingEndpoint),
				TracingServiceName: c.config.GetString(optionNameTracingServiceName),
			})
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}

			// Wait for termination or interrupt signals.
			// We want to clean up things at the end.
			interruptChannel := make(chan os.Signal, 1)
			signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)

			// Block main goroutine until it is interrupted
			sig := <-interruptChannel

			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			// Shutdown
			done := make(chan struct{})
			go func() {
				defer close(done)

				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := p.Shutdown(ctx); err != nil {
					logger.Errorf("shutdown: %v", err)
				}
			}()

			// If shutdown function is blocking too long,
			// allow process termination by receiving another signal.
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
			case <-done:
			}

			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setAllFlags(cmd)
	c.root.AddCommand(cmd)
	return nil
}
