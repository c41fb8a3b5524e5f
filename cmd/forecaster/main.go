// cmd/forecaster/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/forecast-service/internal/cache"
	"github.com/SyedDaiam9101/forecast-service/internal/config"
	"github.com/SyedDaiam9101/forecast-service/internal/dataset"
	"github.com/SyedDaiam9101/forecast-service/internal/device"
	"github.com/SyedDaiam9101/forecast-service/internal/engine"
	"github.com/SyedDaiam9101/forecast-service/internal/handler"
	"github.com/SyedDaiam9101/forecast-service/internal/inference"
	"github.com/SyedDaiam9101/forecast-service/internal/metrics"
	"github.com/SyedDaiam9101/forecast-service/internal/middleware"
	"github.com/SyedDaiam9101/forecast-service/internal/nn"
	"github.com/SyedDaiam9101/forecast-service/internal/optim"
	"github.com/SyedDaiam9101/forecast-service/internal/predictor"
	"github.com/SyedDaiam9101/forecast-service/internal/runner"
	"github.com/SyedDaiam9101/forecast-service/internal/status"
	"github.com/SyedDaiam9101/forecast-service/internal/tracing"
)

const (
	serviceName    = "forecast-service"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to config file (optional)")
	port := flag.Int("port", 0, "gRPC server port (default: 50051)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	redisAddr := flag.String("redis", "", "Redis address for run state (optional)")
	modelPath := flag.String("model", "", "Path to an exported ONNX model; implies evaluation only")
	epochs := flag.Int("epochs", -1, "Number of training epochs")
	runID := flag.String("run-id", "", "Run identifier used to resume state (default: random)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Override with flags if provided
	if *port > 0 {
		cfg.Port = *port
	}
	if *metricsPort > 0 {
		cfg.MetricsPort = *metricsPort
	}
	if *redisAddr != "" {
		cfg.Redis = *redisAddr
	}
	if *modelPath != "" {
		cfg.Model = *modelPath
		cfg.UseONNX = true
	}
	if *epochs >= 0 {
		cfg.Epochs = *epochs
	}
	if *runID != "" {
		cfg.RunID = *runID
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting %s...", serviceName)
	log.Printf("Configuration: run=%s, pre=%d, aft=%d, batch=%d, epochs=%d, lr=%g, sched=%s, port=%d, metrics=%d, redis=%q, onnx=%v",
		cfg.RunID, cfg.PreSeqLength, cfg.AftSeqLength, cfg.BatchSize, cfg.Epochs, cfg.LR, cfg.Sched,
		cfg.Port, cfg.MetricsPort, cfg.Redis, cfg.UseONNX)

	dev := device.CPU{}
	log.Printf("Device: %s", dev.Describe())

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = tracing.Init(tracing.Options{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Endpoint:       cfg.OTELEndpoint,
		})
		if err != nil {
			log.Printf("Warning: Failed to initialize tracer: %v", err)
		} else {
			log.Printf("OpenTelemetry tracing enabled (endpoint: %s)", cfg.OTELEndpoint)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build datasets
	train, vali, test, err := buildLoaders(cfg)
	if err != nil {
		log.Fatalf("Failed to build datasets: %v", err)
	}

	pred, err := predictor.New(cfg.PreSeqLength, cfg.AftSeqLength)
	if err != nil {
		log.Fatalf("Failed to create predictor: %v", err)
	}
	tracker := status.NewTracker(cfg.RunID, cfg.Epochs)
	h := handler.New(pred, tracker)

	exp := &engine.Experiment{
		Train:   train,
		Vali:    vali,
		Test:    test,
		Epochs:  cfg.Epochs,
		RunID:   cfg.RunID,
		Tracker: tracker,
		Publish: h.SetModel,
		PlotDir: cfg.PlotDir,
	}

	// Load the model: an exported ONNX graph is evaluated as is, otherwise a
	// fresh temporal model is trained.
	if cfg.UseONNX {
		log.Printf("Loading ONNX model from %s...", cfg.Model)
		sess, err := inference.New(inference.Options{
			ModelPath:     cfg.Model,
			SharedLibrary: cfg.ONNXLibrary,
			Frames:        cfg.PreSeqLength,
		})
		if err != nil {
			log.Fatalf("Failed to load ONNX model: %v", err)
		}
		defer sess.Close()
		log.Printf("ONNX model loaded successfully")

		exp.Runner = runner.New(sess, pred, nn.MSE{}, dev, nil, nil)
		exp.EvalOnly = true
	} else {
		model, err := nn.NewTemporalLinear(cfg.PreSeqLength, cfg.Seed)
		if err != nil {
			log.Fatalf("Failed to create model: %v", err)
		}
		opt, err := optim.NewAdam(model.Parameters(), cfg.LR, cfg.WeightDecay)
		if err != nil {
			log.Fatalf("Failed to create optimizer: %v", err)
		}
		sched, err := optim.NewScheduler(cfg.Sched, opt, cfg.LR, cfg.Epochs*train.Len())
		if err != nil {
			log.Fatalf("Failed to create scheduler: %v", err)
		}
		log.Printf("Model: temporal linear (%d frames), optimizer: adam, scheduler: %s", model.Frames(), sched.Name())

		exp.Runner = runner.New(model, pred, nn.MSE{}, dev, opt, sched)
		exp.Snapshot = func() predictor.Model { return model.Snapshot() }
	}
	exp.Runner.Observer = tracker
	exp.Runner.LogEvery = cfg.LogEvery

	// Initialize Redis run store (optional)
	if cfg.Redis != "" {
		log.Printf("Connecting to Redis at %s...", cfg.Redis)
		dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
		store, err := cache.New(dialCtx, cfg.Redis)
		dialCancel()
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v (continuing without run state)", err)
		} else {
			defer store.Close()
			exp.Store = store
			log.Printf("Redis connected successfully")
		}
	}

	// Create gRPC health server
	healthServer := health.NewServer()

	// Start HTTP server for metrics and health checks
	httpServer := startHTTPServer(cfg.MetricsPort, healthServer)

	// Build interceptor chain
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	}
	if cfg.OTELEnabled {
		interceptors = append(interceptors, otelgrpc.UnaryServerInterceptor())
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	handler.RegisterForecasterServer(grpcServer, h)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Enable server reflection for debugging
	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING) // Overall health
	metrics.SetHealthy()

	// Run the experiment; the server keeps answering status and forecast
	// calls after it finishes.
	go func() {
		res, err := exp.Run(ctx)
		if err != nil {
			log.Printf("Run %s failed: %v", cfg.RunID, err)
			return
		}
		log.Printf("Run %s finished: best vali loss %.6f at epoch %d, test mse %.6f, plots %v",
			cfg.RunID, res.BestValiLoss, res.BestEpoch+1, res.Test.MSE, res.Plots)
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()

		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		// Give time for load balancers to detect unhealthy status
		time.Sleep(5 * time.Second)

		grpcServer.GracefulStop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(shutdownCtx); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}
	}()

	log.Printf("gRPC server listening on %s", addr)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}

	log.Printf("Server shutdown complete")
}

// buildLoaders renders the synthetic moving-squares splits.
func buildLoaders(cfg *config.Config) (train, vali, test dataset.Loader, err error) {
	gen := dataset.MovingSquares{
		PreLen:   cfg.PreSeqLength,
		AftLen:   cfg.AftSeqLength,
		Channels: cfg.Channels,
		Height:   cfg.Height,
		Width:    cfg.Width,
		Squares:  2,
	}

	split := func(name string, n, batch int, seed int64, shuffle bool) (dataset.Loader, error) {
		x, y, err := gen.Generate(n, seed)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", name, err)
		}
		l, err := dataset.NewSliceLoader(x, y, batch, shuffle, seed)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", name, err)
		}
		if cfg.Prefetch > 0 {
			return dataset.NewPrefetch(l, cfg.Prefetch), nil
		}
		return l, nil
	}

	if train, err = split("train", cfg.TrainSamples, cfg.BatchSize, cfg.Seed, true); err != nil {
		return nil, nil, nil, err
	}
	if vali, err = split("vali", cfg.ValSamples, cfg.ValBatchSize, cfg.Seed+1, false); err != nil {
		return nil, nil, nil, err
	}
	if test, err = split("test", cfg.TestSamples, cfg.ValBatchSize, cfg.Seed+2, false); err != nil {
		return nil, nil, nil, err
	}
	return train, vali, test, nil
}

func startHTTPServer(port int, healthServer *health.Server) *http.Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	check := func(okBody, failBody string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
			if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(failBody))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(okBody))
		}
	}
	mux.HandleFunc("/healthz", check("OK", "Service Unavailable"))
	mux.HandleFunc("/readyz", check("Ready", "Not Ready"))

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s (metrics, health)", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return server
}
