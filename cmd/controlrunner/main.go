// Command controlrunner builds the worked example closed-loop control graph
// (internal/blocks), steps it at a fixed Dt, and serves the telemetry
// control plane (list/start) over HTTP while streaming samples over UDP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/nimbusfly/graphctl/internal/config"
	"github.com/nimbusfly/graphctl/internal/block"
	"github.com/nimbusfly/graphctl/internal/blocks"
	"github.com/nimbusfly/graphctl/internal/bus/telemetrybus"
	"github.com/nimbusfly/graphctl/internal/graph"
	"github.com/nimbusfly/graphctl/internal/observability"
	"github.com/nimbusfly/graphctl/internal/paramstore"
	"github.com/nimbusfly/graphctl/internal/plotter"
	ctlsignal "github.com/nimbusfly/graphctl/internal/signal"
	"github.com/nimbusfly/graphctl/internal/telemetry/control"
	"github.com/nimbusfly/graphctl/internal/telemetry/fanout"
	libtelemetry "github.com/nimbusfly/graphctl/lib/telemetry"
)

const (
	controlServerShutdownTimeout = 5 * time.Second
	lifecycleShutdownTimeout     = 10 * time.Second
	meterShutdownTimeout         = 5 * time.Second
	controlReadHeaderTimeout     = 5 * time.Second
)

func main() {
	flags := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newRunnerLogger()

	cfg := config.Apply(config.FromEnv(),
		configOverrides(flags)...)

	mp, shutdownMeter, err := libtelemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialise meter provider: %v", err)
	}
	metrics, err := observability.NewMetrics(mp)
	if err != nil {
		logger.Fatalf("initialise metrics: %v", err)
	}

	diagCtx, diagCancel := context.WithCancel(context.Background())
	defer diagCancel()
	diagHandler := observability.NewNonBlockingHandler(diagCtx, slog.NewTextHandler(os.Stderr, nil), 256, func() {
		metrics.IncDrops(diagCtx, "__diagnostics", 1)
	})
	slog.SetDefault(slog.New(diagHandler))

	store, err := paramstore.Load(cfg.ParamStorePath)
	if err != nil {
		logger.Fatalf("load parameter store: %v", err)
	}

	plotManifest, err := config.LoadPlotManifest(flags.plotsPath)
	if err != nil {
		logger.Fatalf("load plot manifest: %v", err)
	}

	gb, busBuilder, err := buildControlGraph(store, cfg.Telemetry.ChannelSize, plotManifest.Plots)
	if err != nil {
		logger.Fatalf("build control graph: %v", err)
	}

	drv, err := gb.Build(graph.Params{
		Dt:      cfg.ControlSystem.Dt,
		MaxIter: cfg.ControlSystem.MaxIter,
	})
	if err != nil {
		logger.Fatalf("build driver: %v", err)
	}
	bus := busBuilder.Build()
	actor := fanout.New(bus, 8)

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() { actor.Run(ctx) })

	// Rendezvous: the control thread hands the built telemetry service to
	// the HTTP runtime over a buffered channel of capacity 1, then moves on
	// to stepping the graph — it never blocks waiting for the server.
	serviceReady := make(chan *control.Server, 1)
	serviceReady <- control.NewServer(bus, actor)

	httpServer := buildControlServer(cfg.Telemetry.ListenAddr, <-serviceReady)
	startControlServer(&lifecycle, logger, httpServer)
	logger.Printf("telemetry control listening on %s", httpServer.Addr)

	lifecycle.Go(func() { runDriver(ctx, drv, metrics, cfg.ControlSystem.Dt, logger) })

	logger.Print("controlrunner started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	if err := store.Save(); err != nil {
		logger.Printf("save parameter store: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), lifecycleShutdownTimeout)
	defer shutdownCancel()
	performGracefulShutdown(shutdownCtx, logger, httpServer, &lifecycle, shutdownMeter)
}

type cliFlags struct {
	paramStorePath string
	telemetryAddr  string
	dt             float64
	maxIter        uint64
	plotsPath      string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.paramStorePath, "params", "", "path to the TOML parameter store (default: env or params.toml)")
	flag.StringVar(&f.telemetryAddr, "addr", "", "telemetry control-plane listen address (default: env or :8090)")
	flag.Float64Var(&f.dt, "dt", 0, "simulated step size in seconds (default: env or 0.01)")
	flag.Uint64Var(&f.maxIter, "max-iter", 0, "iteration ceiling (default: env or 0, meaning unbounded; 0 here leaves the env value in place)")
	flag.StringVar(&f.plotsPath, "plots", "", "YAML plot manifest listing extra signals to stream to telemetry (optional)")
	flag.Parse()
	return f
}

func configOverrides(f cliFlags) []config.Option {
	var opts []config.Option
	if f.paramStorePath != "" {
		opts = append(opts, config.WithParamStorePath(f.paramStorePath))
	}
	if f.telemetryAddr != "" {
		opts = append(opts, config.WithTelemetryAddr(f.telemetryAddr))
	}
	if f.dt > 0 {
		opts = append(opts, config.WithDt(f.dt))
	}
	if f.maxIter > 0 {
		opts = append(opts, config.WithMaxIter(f.maxIter))
	}
	return opts
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunnerLogger() *log.Logger {
	return log.New(os.Stdout, "controlrunner ", log.LstdFlags|log.Lmicroseconds)
}

// buildControlGraph wires the worked S1 scenario: a position reference, two
// cascaded PID loops with unit-delay feedback, and a cart plant, with
// position and velocity plotters bound to the telemetry bus. extraPlots are
// additional signals (beyond /cart/pos and /cart/vel) an operator named in a
// YAML plot manifest (config.LoadPlotManifest) for this run.
func buildControlGraph(store *paramstore.Store, channelSize int, extraPlots []config.PlotSpec) (*graph.Builder, *telemetrybus.Builder, error) {
	gb := graph.NewBuilder()
	busBuilder := telemetrybus.NewBuilder()

	posParams, err := paramstore.GetBlockParams(store, "pid", "pid_pos", blocks.PIDParams{Kp: 1})
	if err != nil {
		return nil, nil, fmt.Errorf("load pid_pos params: %w", err)
	}
	velParams, err := paramstore.GetBlockParams(store, "pid", "pid_vel", blocks.PIDParams{Kp: 4})
	if err != nil {
		return nil, nil, fmt.Errorf("load pid_vel params: %w", err)
	}

	ref := blocks.NewConstant("ref", 15.0)
	posLoop := blocks.NewPID("pid_pos", posParams)
	velLoop := blocks.NewPID("pid_vel", velParams)
	cart := blocks.NewCart("cart", 1.0, 0.0, 0.0)
	posDelay := blocks.NewDelay("pos_delay", 0.0)
	velDelay := blocks.NewDelay("vel_delay", 0.0)

	if err := gb.AddBlock(ref, nil, map[string]string{"out": "/ref/pos"}); err != nil {
		return nil, nil, err
	}
	if err := gb.AddBlock(posLoop,
		map[string]string{"ref": "/ref/pos", "meas": "/pos_delayed"},
		map[string]string{"out": "/ref/vel"}); err != nil {
		return nil, nil, err
	}
	if err := gb.AddBlock(velLoop,
		map[string]string{"ref": "/ref/vel", "meas": "/vel_delayed"},
		map[string]string{"out": "/cart/force"}); err != nil {
		return nil, nil, err
	}
	if err := gb.AddBlock(cart,
		map[string]string{"force": "/cart/force"},
		map[string]string{"pos": "/cart/pos", "vel": "/cart/vel"}); err != nil {
		return nil, nil, err
	}
	if err := gb.AddBlock(posDelay, map[string]string{"in": "/cart/pos"}, map[string]string{"out": "/pos_delayed"}); err != nil {
		return nil, nil, err
	}
	if err := gb.AddBlock(velDelay, map[string]string{"in": "/cart/vel"}, map[string]string{"out": "/vel_delayed"}); err != nil {
		return nil, nil, err
	}

	if err := plotter.AddProtoPlotter(gb, busBuilder, "/cart/pos", ctlsignal.KindFloat64, channelSize); err != nil {
		return nil, nil, err
	}
	if err := plotter.AddProtoPlotter(gb, busBuilder, "/cart/vel", ctlsignal.KindFloat64, channelSize); err != nil {
		return nil, nil, err
	}

	builtIn := map[string]bool{"/cart/pos": true, "/cart/vel": true}
	for _, spec := range extraPlots {
		if builtIn[spec.Signal] {
			continue
		}
		kind, err := plotKind(spec.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("plot manifest signal %s: %w", spec.Signal, err)
		}
		if err := plotter.AddProtoPlotter(gb, busBuilder, spec.Signal, kind, channelSize); err != nil {
			return nil, nil, fmt.Errorf("add plotter for %s: %w", spec.Signal, err)
		}
	}

	paramstore.PutBlockParams(store, "pid", "pid_pos", posParams)
	paramstore.PutBlockParams(store, "pid", "pid_vel", velParams)

	return gb, busBuilder, nil
}

func plotKind(kind string) (ctlsignal.Kind, error) {
	switch kind {
	case "float64":
		return ctlsignal.KindFloat64, nil
	case "vector3":
		return ctlsignal.KindVector3, nil
	default:
		return 0, fmt.Errorf("unknown plot kind %q", kind)
	}
}

func buildControlServer(addr string, svc *control.Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: controlReadHeaderTimeout,
	}
}

func startControlServer(lifecycle *conc.WaitGroup, logger *log.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("control server: %v", err)
		}
	})
}

func runDriver(ctx context.Context, drv *graph.Driver, metrics *observability.Metrics, dt float64, logger *log.Logger) {
	ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			result, err := drv.Step()
			metrics.RecordStepLatency(ctx, time.Since(start).Seconds())
			if err != nil {
				logger.Printf("step error: %v", err)
				return
			}
			if result == block.Stop {
				logger.Print("driver reached stop condition")
				return
			}
		}
	}
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, server *http.Server, lifecycle *conc.WaitGroup, shutdownMeter func(context.Context) error) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if server != nil {
		shutdownStep("stopping control server", controlServerShutdownTimeout, func(stepCtx context.Context) error {
			return server.Shutdown(stepCtx)
		})
	}

	if lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if shutdownMeter != nil {
		shutdownStep("shutting down meter provider", meterShutdownTimeout, shutdownMeter)
	}
}
