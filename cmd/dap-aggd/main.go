// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command dap-aggd runs one DAP aggregator process: a Leader, a Helper,
// or both in the same process for local development. Role, storage
// backend, and task configuration are all flag-selected; see
// config/examples/task.yaml for the on-disk task config format.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apimetrics "github.com/luxfi/dap-aggregator/api/metrics"
	"github.com/luxfi/dap-aggregator/auth"
	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/driver"
	"github.com/luxfi/dap-aggregator/hpke"
	nolog "github.com/luxfi/dap-aggregator/log"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/metrics"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/storage/memstore"
	"github.com/luxfi/dap-aggregator/storage/pebblestore"
	"github.com/luxfi/dap-aggregator/transport"
	"github.com/luxfi/dap-aggregator/vdaf/sum"
	"github.com/luxfi/dap-aggregator/workengine"
)

func main() {
	var (
		addr          = flag.String("addr", ":8443", "listen address")
		metricsAddr   = flag.String("metrics-addr", ":9443", "Prometheus /metrics listen address")
		role          = flag.String("role", "leader", "aggregator role: leader, helper, or both")
		taskConfig    = flag.String("task-config", "", "path to a task config YAML file (repeatable via a directory is not yet supported; single task per process)")
		dataDir       = flag.String("data-dir", "", "pebble database directory; empty uses an in-memory store")
		bearerToken   = flag.String("bearer-token", "", "Bearer token this process expects on inbound requests")
		helperBaseURL = flag.String("helper-url", "", "base URL of the Helper aggregator (leader role only)")
	)
	flag.Parse()

	if *taskConfig == "" {
		log.Fatal("dap-aggd: -task-config is required")
	}
	cfg, err := config.LoadFile(*taskConfig)
	if err != nil {
		log.Fatalf("dap-aggd: loading task config: %v", err)
	}

	reg := apimetrics.NewRegistry()
	dapMetrics, err := metrics.NewDAPMetrics(reg)
	if err != nil {
		log.Fatalf("dap-aggd: registering metrics: %v", err)
	}
	runtimeReg := apimetrics.NewRegistry()
	if err := runtimeReg.Register(collectors.NewGoCollector()); err != nil {
		log.Fatalf("dap-aggd: registering go collector: %v", err)
	}
	if err := runtimeReg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		log.Fatalf("dap-aggd: registering process collector: %v", err)
	}
	gatherer := apimetrics.NewMultiGatherer()
	if err := gatherer.Register("dap", reg); err != nil {
		log.Fatalf("dap-aggd: registering dap gatherer: %v", err)
	}
	if err := gatherer.Register("runtime", runtimeReg); err != nil {
		log.Fatalf("dap-aggd: registering runtime gatherer: %v", err)
	}

	store, err := openStore(*dataDir)
	if err != nil {
		log.Fatalf("dap-aggd: opening store: %v", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	hpkeReg := hpke.NewRegistry()
	kp, err := hpke.GenerateKeyPair(1)
	if err != nil {
		log.Fatalf("dap-aggd: generating hpke key pair: %v", err)
	}
	hpkeReg.Add(kp)

	authz := auth.New(nil, true)
	if *bearerToken != "" {
		authz.RegisterTask(cfg.TaskID, []byte(*bearerToken), false)
	}

	deps := &transport.Deps{
		Tasks:   transport.NewStaticTaskSet(cfg),
		Auth:    authz,
		Now:     func() messages.Time { return messages.Time(time.Now().Unix()) },
		Store:   store,
		HpkeReg: hpkeReg,
		Vdaf:    sum.Vdaf{},
		Logger:  nolog.NewNoOpLogger(),
		Metrics: dapMetrics,
	}

	switch *role {
	case "leader", "both":
		engine := workengine.New()
		engine.Metrics = dapMetrics
		engine.RegisterTask(cfg)
		deps.Engine = engine

		var helper driver.HelperClient
		if *role == "both" {
			helper = driver.InProcessHelper{
				Helper: &driver.Helper{Store: store, Registry: hpkeReg, Vdaf: sum.Vdaf{}},
				Config: cfg,
				Now:    messages.Time(time.Now().Unix()),
			}
		} else {
			if *helperBaseURL == "" {
				log.Fatal("dap-aggd: -helper-url is required for role=leader")
			}
			helper = transport.NewHTTPHelperClient(*helperBaseURL, *bearerToken)
		}
		deps.Leader = &driver.Leader{Store: store, Registry: hpkeReg, Vdaf: sum.Vdaf{}, Helper: helper, Metrics: dapMetrics}

		go runWorkQueue(context.Background(), deps, cfg, 500*time.Millisecond)
	}
	switch *role {
	case "helper", "both":
		deps.Helper = &driver.Helper{Store: store, Registry: hpkeReg, Vdaf: sum.Vdaf{}}
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      transport.Routes(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:         *metricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("dap-aggd: serving metrics on %s", *metricsAddr)
		log.Fatal(metricsSrv.ListenAndServe())
	}()

	log.Printf("dap-aggd: role=%s task=%s listening on %s", *role, cfg.TaskID.String(), *addr)
	log.Fatal(srv.ListenAndServe())
}

func openStore(dataDir string) (storage.Store, error) {
	if dataDir == "" {
		return memstore.New(), nil
	}
	return pebblestore.Open(dataDir, sum.Decode)
}
