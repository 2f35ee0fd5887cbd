package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/skyblocks/flightdeck/internal/api"
	"github.com/skyblocks/flightdeck/internal/cache"
	"github.com/skyblocks/flightdeck/internal/codegen"
	"github.com/skyblocks/flightdeck/internal/compiler"
	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/dispatcher"
	"github.com/skyblocks/flightdeck/internal/geo"
	"github.com/skyblocks/flightdeck/internal/handlers"
	"github.com/skyblocks/flightdeck/internal/influx"
	"github.com/skyblocks/flightdeck/internal/logging"
	"github.com/skyblocks/flightdeck/internal/mission"
	"github.com/skyblocks/flightdeck/internal/monitor"
	intOtel "github.com/skyblocks/flightdeck/internal/otel"
	"github.com/skyblocks/flightdeck/internal/parser"
	"github.com/skyblocks/flightdeck/internal/sim"
	"github.com/skyblocks/flightdeck/internal/storage"
	"github.com/skyblocks/flightdeck/internal/worker"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"
)

const AppName = "flightdeck"

// influxFrameStride samples every n-th simulator frame into influx.
const influxFrameStride = 6

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// appOptions selects the parts of the app a command needs.
type appOptions struct {
	// fast replaces the real-time clock with synthetic frames.
	fast bool
	// serve starts the status monitor and honours server.asyncSimulate.
	serve bool
}

// app owns every long-lived component of a command.
type app struct {
	start time.Time

	logFile     *os.File
	logManager  *logging.SlogManager
	logger      *slog.Logger
	otel        *intOtel.Provider
	gelfCloser  io.Closer
	missionCtx  *mission.Context
	programs    *cache.ProgramCache
	runner      *sim.Runner
	backend     storage.Backend
	influx      *influx.Manager
	service     *handlers.Service
	dispatcher  *dispatcher.Dispatcher
	monitor     *monitor.Service
	flightAPI   *api.Client
	logFilePath string
}

// newApp builds the components from the loaded configuration.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{start: time.Now(), missionCtx: mission.NewContext()}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	logger := a.logger

	simCfg := config.GetSimConfig()
	proj, err := geo.NewProjector(simCfg.OriginLat, simCfg.OriginLon)
	if err != nil {
		logger.Warn("Invalid flight origin, map geometry disabled", "lat", simCfg.OriginLat, "lon", simCfg.OriginLon, "error", err)
		proj = nil
	}

	compilerCfg := config.GetCompilerConfig()
	comp := compiler.New(logger, compiler.Options{
		MaxLoopDepth:    compilerCfg.MaxLoopDepth,
		MaxInstructions: compilerCfg.MaxInstructions,
	})
	tmpl, err := codegen.LoadTemplate(viper.GetString("codegen.templatePath"))
	if err != nil {
		a.Close()
		return nil, err
	}
	emitter := codegen.NewEmitter(tmpl, viper.GetString("connection.uri"))

	newClock := func() sim.Clock { return sim.NewTickerClock(simCfg.FrameRate) }
	if opts.fast {
		newClock = func() sim.Clock { return sim.NewStepClock(simCfg.FrameRate) }
	}
	a.runner = sim.NewRunner(sim.New(simCfg.GridSize), newClock, logger)
	if rm, err := intOtel.NewRunMetrics(a.otel.Meter(intOtel.RunMetricsName)); err != nil {
		logger.Warn("Run metrics disabled", "error", err)
	} else {
		a.runner.AddSnapshotSink(rm)
		a.runner.AddEventSink(rm)
	}

	storageCfg := config.GetStorageConfig()
	a.backend, err = createStorageBackend(storageCfg, proj, a.logManager, a.zerolog("database"), a.start)
	if err != nil {
		logger.Error("Failed to create storage backend", "error", err)
		a.Close()
		return nil, err
	}
	if err := a.backend.Init(); err != nil {
		logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		a.backend = nil
		a.Close()
		return nil, fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	recorder := storage.NewRecorder(a.backend, logger)
	a.runner.AddEventSink(recorder)
	a.runner.AddSnapshotSink(recorder)

	var sink *influx.Sink
	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		backupPath := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("influx_backup.%s.lp.gz", a.start.Format("20060102_150405")))
		a.influx = influx.NewManager(influxCfg, a.zerolog("influx"), backupPath)
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.influx.Connect(connectCtx)
		cancel()
		if err != nil {
			logger.Warn("InfluxDB unavailable, run metrics disabled", "url", a.influx.URL(), "error", err)
			a.influx = nil
		} else {
			sink = a.influx.NewSink(influxFrameStride)
			a.runner.AddEventSink(sink)
			a.runner.AddSnapshotSink(sink)
		}
	}

	if url := viper.GetString("api.serverUrl"); url != "" {
		a.flightAPI = api.New(url, viper.GetDuration("api.timeout"))
	}

	a.programs = cache.NewProgramCache(cache.DefaultCapacity)
	deps := handlers.Dependencies{
		LogManager: a.logManager,
		Parser:     parser.NewParser(logger),
		Compiler:   comp,
		Cache:      a.programs,
		Emitter:    emitter,
		Runner:     a.runner,
		Recorder:   recorder,
		Influx:     sink,
		GridSize:   simCfg.GridSize,
	}
	if a.flightAPI != nil {
		deps.Sender = a.flightAPI
	}
	a.service = handlers.NewService(deps, a.missionCtx)

	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(a.zerolog("dispatcher")))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	worker.NewManager(worker.Dependencies{
		LogManager:    a.logManager,
		Service:       a.service,
		AsyncSimulate: opts.serve && viper.GetBool("server.asyncSimulate"),
		SimulateQueue: viper.GetInt("server.simulateQueue"),
	}).RegisterHandlers(a.dispatcher)
	logger.Debug("Worker handlers registered with dispatcher")

	if opts.serve {
		var queues storage.QueueReporter
		if qr, ok := a.backend.(storage.QueueReporter); ok {
			queues = qr
		}
		a.monitor = monitor.NewService(monitor.Dependencies{
			LogManager:     a.logManager,
			MissionContext: a.missionCtx,
			Simulator:      a.runner.Simulator(),
			Queues:         queues,
			CommandQueues:  a.commandQueues,
			Cache:          a.programs,
			Influx:         a.influx,
			StatusFile:     filepath.Join(viper.GetString("logsDir"), "status.json"),
		})
		if err := a.monitor.Start(); err != nil {
			logger.Warn("Failed to start status monitor", "error", err)
		}
	}
	return a, nil
}

// setupLogging points the slog manager at the run log file, adding the
// OTel bridge and the GELF sink when configured.
func (a *app) setupLogging() error {
	a.logManager = logging.NewSlogManager()
	a.logManager.Context = a.missionCtx.LogAttrs
	level := viper.GetString("logLevel")

	logsDir := viper.GetString("logsDir")
	if logsDir != "" {
		f, path, err := logging.OpenLogFile(logsDir, AppName, a.start)
		if err != nil {
			return err
		}
		a.logFile, a.logFilePath = f, path
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			a.logManager.GELF = w
			a.gelfCloser = w
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	a.otel, _ = intOtel.New(intOtel.Config{})
	if otelCfg := config.GetOTelConfig(); otelCfg.Enabled {
		var logWriter io.Writer
		if a.logFile != nil {
			logWriter = a.logFile
		}
		p, err := intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "otel disabled: %v\n", err)
		} else {
			a.otel = p
			otelLogProvider = p.LoggerProvider()
		}
	}

	var file io.Writer
	if a.logFile != nil {
		file = a.logFile
	}
	a.logManager.Setup(file, level, otelLogProvider)
	a.logger = a.logManager.Logger()
	if a.logFilePath != "" {
		a.logger.Info("Logging to file", "path", a.logFilePath, "version", CurrentVersion)
	}
	return nil
}

// zerolog returns a component logger writing next to the slog output.
func (a *app) zerolog(component string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if a.logFile != nil {
		w = a.logFile
	}
	return logging.NewZerolog(w, viper.GetString("logLevel"), component)
}

func (a *app) commandQueues() map[string]int {
	if a.dispatcher == nil {
		return nil
	}
	out := make(map[string]int)
	for _, cmd := range []string{dispatcher.CmdCompile, dispatcher.CmdGenerate, dispatcher.CmdSimulate, dispatcher.CmdSend} {
		if n := a.dispatcher.QueueLen(cmd); n > 0 {
			out[cmd] = n
		}
	}
	return out
}

// checkFlightBackend logs whether the flight backend answers.
func (a *app) checkFlightBackend(ctx context.Context) {
	if a.flightAPI == nil {
		return
	}
	if err := a.flightAPI.Healthcheck(ctx); err != nil {
		a.logger.Info("Flight backend is offline", "url", viper.GetString("api.serverUrl"), "error", err)
		return
	}
	a.logger.Info("Flight backend is online", "url", viper.GetString("api.serverUrl"))
}

// exportedFile returns the file written for the last run, if any.
func (a *app) exportedFile() string {
	if up, ok := a.backend.(storage.Uploadable); ok {
		return up.GetExportedFilePath()
	}
	return ""
}

// Close stops every component in reverse order of construction.
func (a *app) Close() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Warn("Failed to close influx", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.logManager != nil {
		_ = a.logManager.Flush(ctx)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if a.gelfCloser != nil {
		_ = a.gelfCloser.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
