// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Command cdc-replicator runs one replication pipeline from a single
// .properties file named by --config. It accepts one of four lifecycle
// subcommands: init, start, stop, destroy.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/DBAShand/cdc-sink-redshift/internal/config"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var pidFile string

func main() {
	if err := dispatch(); err != nil {
		log.WithError(err).Fatal("cdc-replicator exited with an error")
	}
}

func dispatch() error {
	var cfg config.Config
	cfg.Bind(pflag.CommandLine)
	pflag.StringVar(&pidFile, "pidfile", "/var/run/cdc-replicator.pid",
		"path recording the running start subcommand's process ID, used by stop")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 1 {
		return errors.New("usage: cdc-replicator [--config=...] {init|start|stop|destroy}")
	}

	if err := cfg.Load(); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "parsing logLevel %q", cfg.LogLevel)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	switch args[0] {
	case "init":
		return cmdInit(&cfg)
	case "start":
		return cmdStart(&cfg)
	case "stop":
		return cmdStop()
	case "destroy":
		return cmdDestroy()
	default:
		return errors.Errorf("unrecognized subcommand %q", args[0])
	}
}

// cmdInit validates the configuration and confirms the target is
// reachable, without starting any long-running loop. Operators run this
// once before the first start, mirroring how a daemon's init step
// confirms its environment before a supervisor brings it up.
func cmdInit(cfg *config.Config) error {
	if err := cfg.Preflight(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.Target.DSN)
	if err != nil {
		return errors.Wrap(err, "dialing target for init check")
	}
	defer func() { _ = conn.Close(ctx) }()
	if err := conn.Ping(ctx); err != nil {
		return errors.Wrap(err, "pinging target for init check")
	}
	log.WithField("mappedTables", len(cfg.Table.Mapping)).Info("configuration valid, target reachable")
	return nil
}

// cmdStart runs the pipeline in the foreground until a shutdown signal
// arrives or the pipeline itself fails. It records its PID to pidFile
// so a later stop subcommand, likely invoked from a different process,
// can find it.
func cmdStart(cfg *config.Config) error {
	if err := cfg.Preflight(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.WithError(err).Warn("could not write pidfile; stop subcommand will not find this process")
	} else {
		defer func() { _ = os.Remove(pidFile) }()
	}

	signalCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx := stopper.WithContext(signalCtx)

	engine, err := Start(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "starting engine")
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		return engine.Server.Shutdown(context.Background())
	})
	go func() {
		if err := engine.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("diagnostics server exited unexpectedly")
		}
	}()

	ctx.Go(func() error {
		<-signalCtx.Done()
		log.Info("received shutdown signal")
		ctx.Stop(cfg.Watchdog.StopGracePeriod)
		return nil
	})

	log.WithFields(log.Fields{
		"pipeline": cfg.Kafka.ConsumerGroup,
		"dialect":  cfg.Kafka.Dialect,
		"bindAddr": cfg.BindAddr,
	}).Info("starting replication pipeline")

	runErr := engine.PipeLine.Run(ctx)
	ctx.Stop(cfg.Watchdog.StopGracePeriod)
	if runErr != nil {
		return errors.Wrap(runErr, "pipeline run")
	}
	return nil
}

// cmdStop signals a running start subcommand's process to shut down
// cooperatively, reading its PID from pidFile. The process itself
// handles SIGTERM by raising its own stopper.Context, draining in
// flight batches before exiting.
func cmdStop() error {
	raw, err := os.ReadFile(pidFile)
	if err != nil {
		return errors.Wrap(err, "reading pidfile; is the pipeline running")
	}
	pid, err := strconv.Atoi(string(raw))
	if err != nil {
		return errors.Wrapf(err, "pidfile %s contains garbage", pidFile)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "finding process %d", pid)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "signaling process %d", pid)
	}
	log.WithField("pid", pid).Info("sent shutdown signal")
	return nil
}

// cmdDestroy stops a running pipeline, if any, and removes its pidfile.
// There is no persistent target-side state to tear down beyond that:
// the delete-phase staging tables the ChangeLoader creates are session
// temp tables (ON COMMIT DELETE ROWS, scoped to pg_temp), so they never
// outlive the connection that created them.
func cmdDestroy() error {
	if _, err := os.Stat(pidFile); err == nil {
		if err := cmdStop(); err != nil {
			return err
		}
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing pidfile")
	}
	return nil
}
