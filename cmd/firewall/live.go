// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tsdasari9/firewall/internal/api"
	"github.com/tsdasari9/firewall/internal/capture"
	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/firewall"
	"github.com/tsdasari9/firewall/internal/logging"
	"github.com/tsdasari9/firewall/internal/metrics"
)

const collectInterval = 15 * time.Second

func runLive(ctx context.Context, configPath string, stderr io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closer, err := firewall.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	logging.SetDefault(logger)

	if len(cfg.ACL) == 0 {
		logger.Warn("No ACL rules configured; every TCP and UDP packet will be dropped")
	}

	policies, err := firewall.NewPolicies(cfg, nil)
	if err != nil {
		return err
	}
	logger.Info("Policies ready",
		"public_address", policies.NAT.PublicAddress().String(),
		"intrusion", policies.Intrusion != nil,
		"rate_limit", policies.RateLimit != nil,
		"traffic_shaping", policies.Shaper != nil,
		"acl_rules", policies.ACL.Len())

	in, err := firewall.OpenSource(cfg, logger.WithComponent("capture"))
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			logger.Warn("Failed to close capture source", "error", err)
		}
	}()

	registry := metrics.NewRegistry()
	if err := registry.WatchPolicies(policies); err != nil {
		return err
	}
	msink := metrics.NewSink(registry)
	collector := metrics.NewCollector(registry, logger.WithComponent("metrics"), collectInterval)
	if probe := in.Probe(); probe != nil {
		collector.AddProbe(in.Kind(), probe)
	}
	if ct, err := metrics.OpenConntrack(); err != nil {
		logger.Debug("Conntrack statistics unavailable", "error", err)
	} else {
		defer ct.Close()
		collector.AddProbe("conntrack", ct.Sample)
	}
	hub := api.NewHub(logger.WithComponent("events"))

	opts := []firewall.Option{
		firewall.WithLogger(logger.WithComponent("firewall")),
		firewall.WithSinks(engine.NewLogSink(logger.WithComponent("dispatcher")), msink, hub),
		firewall.WithErrorHook(msink.CaptureError),
	}
	if path := cfg.Capture.DropPCAP; path != "" {
		w, err := capture.CreatePCAP(path, in.LinkType(), uint32(cfg.Capture.Snaplen))
		if err != nil {
			return err
		}
		defer w.Close()
		opts = append(opts, firewall.WithDropWriter(w))
		logger.Info("Recording dropped frames", "file", path)
	}

	svc, err := firewall.New(in, policies, opts...)
	if err != nil {
		return err
	}

	var server *api.Server
	if cfg.API.IsEnabled() {
		server, err = api.NewServer(api.ServerOptions{
			Policies:  policies,
			Registry:  registry,
			Collector: collector,
			Hub:       hub,
			Stats:     func() any { return svc.Stats() },
			Logger:    logger.WithComponent("api"),
		})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A finished source ends the whole process.
		defer cancel()
		return svc.Run(gctx)
	})

	g.Go(func() error {
		collector.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		collector.Stop()
		return nil
	})

	if server != nil {
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.API.Listen)
		})
	}

	err = g.Wait()
	st := svc.Stats()
	logger.Info("Firewall stopped",
		"received", st.Received,
		"forwarded", st.Forwarded,
		"dropped", st.Dropped,
		"nat_mappings", policies.NAT.Len())
	return err
}
