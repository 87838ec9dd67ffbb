package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickbus/tickbus/config"
	"github.com/tickbus/tickbus/pkg/api"
	"github.com/tickbus/tickbus/pkg/api/handlers"
	"github.com/tickbus/tickbus/pkg/emitter"
	"github.com/tickbus/tickbus/pkg/fsm"
	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/loop"
	"github.com/tickbus/tickbus/pkg/metrics"
	"github.com/tickbus/tickbus/pkg/relay"
	"github.com/tickbus/tickbus/pkg/telemetry/tracing"
	"github.com/tickbus/tickbus/pkg/version"
)

// app owns every runtime component of the daemon.
type app struct {
	cfg *config.Config
	log logger.Logger

	hub      *hub.Hub
	loop     *loop.Loop
	machines []*fsm.Machine
	emitters []*emitter.Set
	relay    *relay.Relay
	redis    redis.UniversalClient
	metrics  *metrics.Manager
	server   *api.HTTPServer

	shutdownTracing tracing.ShutdownFunc

	wg      sync.WaitGroup
	errCh   chan error
	cancel  context.CancelFunc
	stopped bool
}

// newApp builds the component graph without starting any goroutine.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log, errCh: make(chan error, 4)}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	a.shutdownTracing, err = tracing.Init(ctx, cfg.Tracing.ToTracingConfig(), tracing.Service{
		Name:       cfg.App.Name,
		Version:    version.Version,
		InstanceID: cfg.Relay.Source,
	})
	if err != nil {
		return a, fmt.Errorf("init tracing: %w", err)
	}

	a.metrics = metrics.NewManager(metrics.Config{
		Enabled:              cfg.Metrics.Enabled,
		Port:                 cfg.Metrics.Port,
		Path:                 cfg.Metrics.Path,
		TickDurationBuckets:  metrics.DefaultConfig().TickDurationBuckets,
		FrameDurationBuckets: metrics.DefaultConfig().FrameDurationBuckets,
		HTTPDurationBuckets:  metrics.DefaultConfig().HTTPDurationBuckets,
	})
	if a.metrics.Enabled() {
		a.metrics.Install()
	}

	a.hub = hub.New(
		hub.WithLogger(log),
		hub.WithBusName(cfg.App.Name),
		hub.WithQueueSize(cfg.Loop.QueueSize),
	)
	for _, name := range cfg.Signals {
		if !a.hub.Bus().HasSignal(name) {
			a.hub.Bus().CreateSignal(name)
		}
	}

	if err = a.buildMachines(); err != nil {
		return a, err
	}

	if cfg.Relay.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.relay, err = relay.New(a.redis, a.hub.Bus(), cfg.Relay.ToRelayConfig(), relay.WithLogger(log))
		if err != nil {
			return a, fmt.Errorf("create relay: %w", err)
		}
	}

	a.loop, err = loop.New(cfg.Loop.ToLoopConfig(), a.hub,
		loop.WithLogger(log),
		loop.WithFrameHook(a.drain),
	)
	if err != nil {
		return a, err
	}

	if cfg.Server.Enabled {
		a.server = api.NewHTTPServer(cfg, log, a.handlers())
	}
	return a, nil
}

func (a *app) buildMachines() error {
	byName := make(map[string]*fsm.Machine)
	for _, path := range a.cfg.FSM.Definitions {
		def, err := fsm.LoadFile(path)
		if err != nil {
			return err
		}
		m, err := fsm.Build(def, fsm.WithBus(a.hub.Bus()), fsm.WithLogger(a.log))
		if err != nil {
			return fmt.Errorf("build machine from %s: %w", path, err)
		}
		if _, dup := byName[m.Name()]; dup {
			return fmt.Errorf("machine %q defined twice", m.Name())
		}
		byName[m.Name()] = m
		a.machines = append(a.machines, m)
	}

	for _, tr := range a.cfg.FSM.Triggers {
		m, ok := byName[tr.Machine]
		if !ok {
			return fmt.Errorf("trigger on %s: unknown machine %q", tr.Signal, tr.Machine)
		}
		if !m.HasState(tr.State) {
			return fmt.Errorf("trigger on %s: %w", tr.Signal, &fsm.UnknownStateError{Machine: tr.Machine, State: tr.State})
		}
		m.BindTrigger(a.hub.Bus(), tr.Signal, tr.State)
	}
	return nil
}

func (a *app) handlers() *api.Handlers {
	health := handlers.NewHealthHandler(a.hub, a.loop)
	if a.relay != nil {
		health.AddCheck("relay", func(ctx context.Context) error {
			if !a.relay.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		})
	}

	h := &api.Handlers{
		Health:   health,
		Signals:  handlers.NewSignalHandler(a.hub, a.log),
		Timers:   handlers.NewTimerHandler(a.hub),
		Machines: handlers.NewMachineHandler(a.hub, a.machines...),
		Tap: handlers.NewSignalTap(a.hub.Bus(), a.log, handlers.SignalTapConfig{
			AllowedOrigins: a.cfg.Server.CORS.AllowedOrigins,
			MaxConnections: a.cfg.Server.MaxWebSocketConnections,
		}),
	}
	if a.metrics.Enabled() {
		h.Metrics = a.metrics
		if a.cfg.Metrics.Port == 0 {
			h.MetricsHandler = a.metrics.Handler()
		}
	}
	return h
}

// drain runs queued hub commands and relayed signals on the frame goroutine.
func (a *app) drain(context.Context) {
	a.hub.Drain()
	if a.relay != nil {
		a.relay.Drain()
	}
}

// start launches the relay, emitters, loop and servers.
func (a *app) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.relay != nil {
		if err := a.relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
	}

	groups, err := a.cfg.EmitterSpecs()
	if err != nil {
		return err
	}
	for sched, specs := range groups {
		set, err := emitter.Start(a.hub, sched, specs, emitter.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.emitters = append(a.emitters, set)
	}

	a.goRun("loop", func() error { return a.loop.Run(runCtx) })

	if a.metrics.Enabled() && a.cfg.Metrics.Port != 0 {
		a.goRun("metrics server", func() error {
			return a.metrics.StartServer(runCtx, a.cfg.Metrics.Port, a.cfg.Metrics.Path)
		})
	}
	if a.server != nil {
		a.goRun("http server", a.server.Start)
	}

	a.log.Info("tickbusd is running",
		"http_enabled", a.server != nil,
		"relay_enabled", a.relay != nil,
		"machines", len(a.machines),
		"emitters", len(a.cfg.Emitters),
	)
	return nil
}

func (a *app) goRun(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			a.errCh <- fmt.Errorf("%s: %w", name, err)
		}
	}()
}

// failures reports background component errors.
func (a *app) failures() <-chan error { return a.errCh }

// applyHotReload updates the log level and time scale from a reloaded config.
func (a *app) applyHotReload(prev, next config.HotReloadableConfig) {
	if next.LogLevel != prev.LogLevel {
		a.log.SetLevel(logger.ParseLevel(next.LogLevel))
		a.log.Info("log level changed", "level", next.LogLevel)
	}
	if next.TimeScale != prev.TimeScale {
		scale := next.TimeScale
		if err := a.loop.SetTimeScale(scale); err != nil {
			a.log.Warn("time scale not applied", "time_scale", scale, "error", err)
			return
		}
		a.log.Info("time scale changed", "time_scale", scale)
	}
}

// shutdown stops the loop, the HTTP server, the relay and the hub, then
// flushes tracing.
func (a *app) shutdown(ctx context.Context) error {
	if a.stopped {
		return nil
	}
	a.stopped = true

	var errs []error
	if a.cancel != nil {
		a.cancel()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for background components: %w", ctx.Err()))
	}

	for _, set := range a.emitters {
		set.Stop()
	}
	errs = append(errs, a.release(ctx))
	return errors.Join(errs...)
}

// release closes everything newApp created.
func (a *app) release(ctx context.Context) error {
	var errs []error
	if a.relay != nil {
		if err := a.relay.Close(5 * time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.metrics != nil && a.metrics.Enabled() {
		metrics.Uninstall()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
