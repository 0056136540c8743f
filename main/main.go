// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/ava-labs/l2devnet/api"
	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/origin"
)

const (
	Name    = "l2devnet"
	Version = "v0.1.0"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := buildFlagSet()
	v, err := getViper(fs, os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	// Print version and exit
	if v.GetBool(versionKey) {
		fmt.Printf("%s@%s\n", Name, Version)
		return nil
	}
	p, err := parseParams(v)
	if err != nil {
		return err
	}

	lvl, err := log.LvlFromString(p.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", logLevelKey, err)
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))

	registry := prometheus.NewRegistry()
	opts := []devnet.Option{devnet.WithRegisterer(registry)}
	if p.forkNetwork != "" {
		opts = append(opts, devnet.WithOrigin(origin.NewFork(p.forkNetwork, p.forkTimeout)))
	}
	d, err := devnet.New(p.config, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if p.loadPath != "" {
		if err := d.Load(ctx, p.loadPath); err != nil {
			return err
		}
	}

	handler, err := api.NewServer(d, registry)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              net.JoinHostPort(p.host, strconv.Itoa(int(p.port))),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("devnet listening", "addr", server.Addr, "version", Version)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server did not shut down cleanly", "err", err)
	}
	return d.Shutdown(shutdownCtx)
}
