// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package runtime wires a parsed config.Config into a running gateway: the
// pod catalog, routing store and job store (in-memory or SQL-backed),
// scheduler, forwarder and HTTP API, with the same start/serve/graceful
// shutdown lifecycle the teacher's runtime.Runtime exposes for its own
// server mode.
package runtime

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trio2o/trio2o/config"
	"github.com/trio2o/trio2o/log"
	"github.com/trio2o/trio2o/pkg/api"
	"github.com/trio2o/trio2o/pkg/forward"
	"github.com/trio2o/trio2o/pkg/job"
	"github.com/trio2o/trio2o/pkg/job/handlers"
	"github.com/trio2o/trio2o/pkg/pod"
	"github.com/trio2o/trio2o/pkg/routing"
	"github.com/trio2o/trio2o/pkg/scheduler"
	"github.com/trio2o/trio2o/pkg/scheduler/filters"
	"github.com/trio2o/trio2o/pkg/scheduler/weighers"
	sqlstore "github.com/trio2o/trio2o/pkg/store/sql"
)

// Params configures a Runtime at construction time, the fields cmd/run.go
// and cmd/xjob.go populate from flags.
type Params struct {
	ID         string
	ConfigFile string
	Addr       string
	DBDriver   string // empty means in-memory stores
	DBDSN      string
	Logging    LoggingConfig

	GracefulShutdownPeriod int // seconds
}

// LoggingConfig mirrors the teacher's level/format knobs.
type LoggingConfig struct {
	Level  string
	Format string
}

// ResourceTypes is the set of downstream resource kinds the gateway proxies.
// compute/volume/network are the three resource families spec.md's worked
// examples name. The list is fixed in code; the config file has no setting
// that adds to it.
var ResourceTypes = []api.ResourceType{
	{PathName: "servers", Name: "server", ServiceType: "compute", Envelope: "server"},
	{PathName: "volumes", Name: "volume", ServiceType: "volume", Envelope: "volume"},
	{PathName: "networks", Name: "network", ServiceType: "network", Envelope: "network"},
}

// Runtime holds the live gateway: its stores, scheduler, forwarder, job
// coordinator and HTTP server, ready to Serve.
type Runtime struct {
	Params Params
	Config *config.Config
	Logger log.Logger

	Catalog pod.Catalog
	Routing routing.Store
	Jobs    *job.Coordinator

	server *api.Server
	db     *sqlstore.DB
}

// NewRuntime builds a Runtime from raw config bytes, wiring stores,
// scheduler and forwarder per cfg's driver selection.
func NewRuntime(ctx context.Context, params Params, raw []byte) (*Runtime, error) {
	cfg, err := config.ParseConfig(raw, params.ID)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	logger := log.NewLogger()
	if params.Logging.Level != "" {
		if err := logger.SetLevel(params.Logging.Level); err != nil {
			return nil, err
		}
	}
	if params.Logging.Format == "json" {
		logger.SetJSONFormatter()
	}

	rt := &Runtime{Params: params, Config: cfg, Logger: logger}

	if err := rt.openStores(params); err != nil {
		return nil, err
	}

	sched, err := rt.buildScheduler(cfg)
	if err != nil {
		return nil, err
	}

	outbound := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	fwd := forward.NewForwarder(outbound, catalogEndpoints{rt.Catalog}, cfg.Client.AutoRefreshEndpoint, logger)

	rt.Jobs = job.NewCoordinator(rt.jobStore(), logger)
	rt.Jobs.WorkerHandleTimeout = cfg.Worker.WorkerHandleTimeoutDuration()
	rt.Jobs.JobRunExpire = cfg.Worker.JobRunExpireDuration()
	rt.Jobs.WorkerSleepTime = cfg.Worker.WorkerSleepTimeDuration()
	rt.Jobs.SetRedoRateLimit(rt.Jobs.WorkerSleepTime)
	rt.Jobs.RegisterHandler(handlers.PodStateStatisticsType, handlers.PodStateStatistics(rt.Catalog, fwd))

	rt.server = api.New(&api.Server{
		Catalog:    rt.Catalog,
		Routing:    rt.Routing,
		Scheduler:  sched,
		Forwarder:  fwd,
		Jobs:       rt.Jobs,
		Logger:     logger,
		TopPodName: cfg.Client.TopPodName,
	}, ResourceTypes)

	return rt, nil
}

func (rt *Runtime) openStores(params Params) error {
	if params.DBDriver == "" {
		rt.Catalog = pod.NewInMemory()
		rt.Routing = routing.NewInMemory()
		return nil
	}

	db, err := sqlstore.Open(params.DBDriver, params.DBDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := sqlstore.Migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate db: %w", err)
	}
	rt.db = db
	rt.Catalog = sqlstore.NewPodStore(db)
	rt.Routing = sqlstore.NewRoutingStore(db)
	return nil
}

// AdminStores opens just the pod catalog and job store for params, without
// building a Scheduler, Forwarder or HTTP server. It backs read-only admin
// CLI subcommands ("trio2o pod list", "trio2o job list") that only need to
// look at persisted state.
func AdminStores(params Params) (pod.Catalog, job.Store, func() error, error) {
	rt := &Runtime{}
	if err := rt.openStores(params); err != nil {
		return nil, nil, nil, err
	}
	jobs := rt.jobStore()
	closeFn := func() error {
		if rt.db != nil {
			return rt.db.Close()
		}
		return nil
	}
	return rt.Catalog, jobs, closeFn, nil
}

func (rt *Runtime) jobStore() job.Store {
	if rt.db == nil {
		return job.NewInMemory()
	}
	return sqlstore.NewJobStore(rt.db)
}

// buildScheduler constructs the configured Scheduler variant: chance_scheduler
// samples uniformly, filter_scheduler runs the two-phase tenant-bound
// filter+weigh selection spec.md §4.3 describes.
func (rt *Runtime) buildScheduler(cfg *config.Config) (scheduler.Scheduler, error) {
	source := scheduler.CatalogSource{Catalog: rt.Catalog}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	if !cfg.UsesFilterScheduler() {
		return &scheduler.ChanceScheduler{Source: source, Rand: rnd}, nil
	}

	fs := cfg.FilterScheduler
	tenantBound := scheduler.TenantBoundFunc(rt.Catalog)
	registry := scheduler.NewFilterRegistry(filters.All(tenantBound)...)

	nonTenantNames := without(fs.EnabledFilters, "Tenant")
	nonTenantPipeline, err := registry.Pipeline(nonTenantNames)
	if err != nil {
		return nil, err
	}
	tenantNames := withTenant(fs.EnabledFilters)
	tenantPipeline, err := registry.Pipeline(tenantNames)
	if err != nil {
		return nil, err
	}

	weigher := scheduler.NewWeigherPipeline(weighers.All(weighers.Multipliers{
		RAM:      fs.RAMWeightMultiplier,
		Disk:     fs.DiskWeightMultiplier,
		VCPU:     fs.VCPUWeightMultiplier,
		Workload: fs.WorkloadWeightMultiplier,
	})...)

	return &scheduler.FilterScheduler{
		Source:                  source,
		Rand:                    rnd,
		TenantFilters:           registry,
		NonTenantFilterPipeline: nonTenantPipeline,
		TenantFilterPipeline:    tenantPipeline,
		Weigher:                 weigher,
		PodSubsetSize:           fs.PodSubsetSize,
		ShuffleBestSameWeighed:  fs.ShuffleBestSameWeighed,
	}, nil
}

func without(names []string, drop string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}

func withTenant(names []string) []string {
	for _, n := range names {
		if n == "Tenant" {
			return names
		}
	}
	return append(append([]string{}, names...), "Tenant")
}

// catalogEndpoints adapts pod.Catalog into forward.EndpointCatalog: a pod's
// endpoint is derived from its recorded az/pod name, the same convention
// the original implementation's endpoint table used before a dedicated
// service-catalog component existed.
type catalogEndpoints struct {
	catalog pod.Catalog
}

func (c catalogEndpoints) Endpoint(ctx context.Context, podID, serviceType string) (string, error) {
	p, ok, err := c.catalog.GetByID(ctx, podID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("pod %s not found", podID)
	}
	return fmt.Sprintf("http://%s.%s/%s", p.PodName, p.PodAZName, serviceType), nil
}

// StartServer runs the HTTP API until ctx is canceled or a SIGINT/SIGTERM
// arrives, then shuts down gracefully within GracefulShutdownPeriod.
func (rt *Runtime) StartServer(ctx context.Context) error {
	ln, err := net.Listen("tcp", rt.Params.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", rt.Params.Addr, err)
	}

	httpServer := &http.Server{Handler: rt.server}
	errc := make(chan error, 1)
	go func() { errc <- httpServer.Serve(ln) }()

	rt.Logger.WithField("addr", rt.Params.Addr).Info("gateway listening")

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-signalc:
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	period := rt.Params.GracefulShutdownPeriod
	if period <= 0 {
		period = 10
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(period)*time.Second)
	defer cancel()

	rt.Logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		rt.Logger.WithField("err", err.Error()).Error("graceful shutdown failed")
		return err
	}
	if rt.db != nil {
		return rt.db.Close()
	}
	return nil
}

// StartWorker runs the xjob redo sweep on a fixed interval until ctx is
// canceled, the gateway's equivalent of a standalone celery-beat-style
// worker process in the original implementation's xjob service.
func (rt *Runtime) StartWorker(ctx context.Context) error {
	interval := rt.Jobs.WorkerSleepTime
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if rt.db != nil {
				return rt.db.Close()
			}
			return nil
		case <-ticker.C:
			if err := rt.Jobs.RedoFailedJobs(ctx); err != nil {
				rt.Logger.WithField("err", err.Error()).Warn("redo_failed_jobs failed")
			}
		}
	}
}
