package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/smarthome_router/internal/config"
	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/dashboard"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/health"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/historian"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/telemetry"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to the YAML settings file")
		logLevel   = pflag.String("log-level", "", "override the configured log level")
		httpPort   = pflag.Int("http-port", 0, "override the HTTP port")
		grpcPort   = pflag.Int("grpc-port", 0, "override the gRPC health port")
	)
	pflag.Parse()

	if err := run(*configPath, *logLevel, *httpPort, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "router: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string, httpPort, grpcPort int) error {
	// === Config ===
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	if httpPort != 0 {
		settings.HTTPPort = httpPort
	}
	if grpcPort != 0 {
		settings.GRPCPort = grpcPort
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	level, _ := settings.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === Metrics ===
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(promReg)

	// === Core ===
	registry := telemetry.NewRegistry(logger, metrics)
	tracker := telemetry.NewTracker(settings.Liveness.Threshold)
	router := telemetry.NewRouter(settings.Topics, telemetry.NewReducer(), tracker, registry, logger, metrics)
	manager := telemetry.NewManager(telemetry.DialMQTT, router, registry, settings.BreakerSettings(), logger, metrics)

	// === Observers ===
	cache := dashboard.NewCache()
	if err := cache.Attach(registry); err != nil {
		return err
	}
	if err := registry.OnAlarmTrigger(func(t model.AlarmTrigger) error {
		logger.Warn("alarm trigger received", "source", t.Source, "reason", t.Reason)
		return nil
	}); err != nil {
		return err
	}

	var writer *historian.Writer
	var ager health.ErrorAger
	if settings.Influx.Enabled() {
		influx := influxdb2.NewClientWithOptions(settings.Influx.URL, settings.Influx.Token,
			influxdb2.DefaultOptions().SetBatchSize(50).SetFlushInterval(1000))
		defer influx.Close()
		writer = historian.NewWriter(influx.WriteAPI(settings.Influx.Org, settings.Influx.Bucket), logger)
		defer writer.Flush()
		if err := writer.Attach(registry); err != nil {
			return err
		}
		ager = writer
		logger.Info("historian enabled", "url", settings.Influx.URL, "bucket", settings.Influx.Bucket)
	}

	monitor := health.NewMonitor(ager, settings.ReadinessGrace)
	if err := monitor.Attach(registry); err != nil {
		return err
	}

	// === gRPC health ===
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(settings.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, monitor.GRPC())
	go func() {
		logger.Info("router: gRPC health listening", "port", settings.GRPCPort)
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc server", "err", err)
			stop()
		}
	}()

	// === HTTP ===
	mux := dashboard.NewHTTPMux(cache, manager, tracker, logger)
	mux.Handle("GET /healthz", monitor.HealthHandler())
	mux.Handle("GET /readyz", monitor.ReadyHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}))
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(settings.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("router: HTTP listening", "port", settings.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	logger.Info("router: observers attached",
		"sensorData", registry.Count(telemetry.EventSensorData),
		"connect", registry.Count(telemetry.EventConnect),
		"liveness_threshold", tracker.Threshold())

	// === Broker ===
	go router.WatchLiveness(ctx, settings.Liveness.Tick)
	if err := manager.Connect(ctx, settings.Bus()); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("router: shutting down")

	manager.Close()
	monitor.Shutdown()
	gs.GracefulStop()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	return nil
}
