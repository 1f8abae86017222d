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
	"strings"
	"syscall"
	"time"

	"github.com/gothamgeo/geoclient/internal/batch"
	"github.com/gothamgeo/geoclient/internal/config"
	"github.com/gothamgeo/geoclient/internal/geoclient"
	"github.com/gothamgeo/geoclient/internal/metrics"
	"github.com/gothamgeo/geoclient/internal/models"
	"github.com/gothamgeo/geoclient/internal/repository"
	"github.com/gothamgeo/geoclient/internal/tabular"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application. It reads an input CSV, runs it
// through the chosen Geoclient lookup variant, and writes the result CSV.
func main() {
	inputPath := flag.String("input", "", "path to the input CSV file")
	outputPath := flag.String("output", "", "path to the output CSV file")
	variantName := flag.String("variant", "address", "lookup variant: address, bin or bbl")
	keyField := flag.String("key", "id", "input column uniquely identifying each row")
	houseCol := flag.String("house", "house_number", "input column with the house number (address variant)")
	streetCol := flag.String("street", "street_name", "input column with the street name (address variant)")
	boroughCol := flag.String("borough", "borough", "input column with the borough (address and bbl variants)")
	zipCol := flag.String("zip", "postcode", "input column with the zip code (address variant)")
	binCol := flag.String("bin", "bin", "input column with the building identification number (bin variant)")
	blockCol := flag.String("block", "block", "input column with the tax block (bbl variant)")
	lotCol := flag.String("lot", "lot", "input column with the tax lot (bbl variant)")
	fieldList := flag.String("fields", "", "comma-separated response fields to project (variant defaults when empty)")
	flag.Parse()

	if *inputPath == "" || *outputPath == "" {
		log.Fatal("both -input and -output must be set")
	}

	// Create a context that will be canceled when an interrupt signal is
	// received, so a long batch can be stopped cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// Wire the optional response cache.
	var dtb *pgxpool.Pool
	var cache batch.Cache
	if cfg.CacheEnabled {
		var err error
		dtb, err = repository.NewDatabase(
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer dtb.Close()

		repo := repository.NewRepository(dtb, logger)
		if err = repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare cache schema: %v", err)
		}
		if cfg.CacheMaxAge > 0 {
			swept, sweepErr := repo.DeleteOlderThan(ctx, cfg.CacheMaxAge)
			if sweepErr != nil {
				logger.WarnContext(ctx, "Failed to sweep stale cache entries", "error", sweepErr)
			} else if swept > 0 {
				logger.InfoContext(ctx, "Swept stale cache entries", "count", swept)
			}
		}
		cache = repository.NewRecordCache(repo, logger)
	}

	// Start the monitoring server in a goroutine so it can be scraped while
	// the batch runs.
	go startMonitoringServer(ctx, logger, reg, dtb, cfg.Port)

	variant, err := buildVariant(*variantName, *houseCol, *streetCol, *boroughCol, *zipCol, *binCol, *blockCol, *lotCol)
	if err != nil {
		log.Fatalf("Invalid variant: %v", err)
	}

	rows, _, err := tabular.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	client := geoclient.NewClient(cfg.BaseURL, cfg.SubscriptionKey, logger)
	runner := batch.NewRunner(
		logger,
		client,
		cache,
		appMetrics,
		cfg.Workers,
		float64(cfg.RatePerMinute),
		cfg.RequestTimeout,
	)

	req := batch.Request{
		Rows:           rows,
		KeyField:       *keyField,
		Variant:        variant,
		ResponseFields: splitFields(*fieldList),
	}

	logger.InfoContext(ctx, "Application started",
		"variant", *variantName,
		"input", *inputPath,
		"rows", len(rows),
	)

	results, err := runner.Run(ctx, req)
	if err != nil {
		log.Fatalf("Batch aborted: %v", err)
	}

	columns := batch.OutputColumns(*keyField, req.EffectiveFields())
	if err = tabular.WriteFile(*outputPath, results, columns); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	failed := 0
	for _, row := range results {
		if row[models.ErrorColumn] != "" {
			failed++
		}
	}

	logger.InfoContext(ctx, "Batch written",
		"output", *outputPath,
		"rows", len(results),
		"ok", len(results)-failed,
		"failed", failed,
	)
}

// buildVariant assembles the lookup variant from the column-name flags.
func buildVariant(
	name, houseCol, streetCol, boroughCol, zipCol, binCol, blockCol, lotCol string,
) (geoclient.Variant, error) {
	switch name {
	case string(geoclient.EndpointAddress):
		return geoclient.AddressVariant(houseCol, streetCol, boroughCol, zipCol), nil
	case string(geoclient.EndpointBin):
		return geoclient.BinVariant(binCol), nil
	case string(geoclient.EndpointBbl):
		return geoclient.BblVariant(boroughCol, blockCol, lotCol), nil
	default:
		return geoclient.Variant{}, fmt.Errorf("unknown variant %q, want address, bin or bbl", name)
	}
}

func splitFields(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			fields = append(fields, part)
		}
	}
	return fields
}

// startMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It listens on the specified port and logs the server's status and any errors encountered.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - dtb: A pgxpool connector for database methods (ping); nil when the cache is disabled.
// - port: The port number on which the server will listen.
func startMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	dtb *pgxpool.Pool,
	port int,
) {
	http.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if dtb != nil {
			if err := dtb.Ping(ctx); err != nil {
				status, body = http.StatusServiceUnavailable, "DB ping failed"
			}
		}
		writer.WriteHeader(status)
		_, err := writer.Write([]byte(body))
		if err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      http.DefaultServeMux,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.ErrorContext(ctx, "Monitoring server failed", "error", err)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelWarn,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelError,
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
