// Command odata-gateway serves database tables as a read-only OData v4 service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	odata "github.com/nlstn/go-odata-sql"
	"github.com/nlstn/go-odata-sql/internal/config"
	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/engine/sqlengine"
	"github.com/nlstn/go-odata-sql/internal/gateway"
	"github.com/nlstn/go-odata-sql/internal/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "odata-gateway",
		Short: "Read-only OData v4 gateway over SQL tables",
		Long: `Read-only OData v4 gateway over SQL tables.

Every bound table is exposed as an entity set supporting $filter, $select, $orderby,
$top, $skip, $count and $format. Settings come from flags, ODATA_* environment
variables, a .env file and an optional config file listing the bindings.

Examples:
  odata-gateway --driver sqlite --dsn ./shop.db --bind-all
  odata-gateway --driver postgres --dsn postgres://user:pw@db/shop --config bindings.yaml
  odata-gateway --driver memory --max-page-size 100`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	if err := config.RegisterFlags(cmd.PersistentFlags(), v); err != nil {
		panic(err)
	}
	cmd.AddCommand(newTablesCommand(v))
	return cmd
}

// newTablesCommand prints the tables the engine reports, to help write a bindings file.
func newTablesCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			eng, closeEngine, err := openEngine(cfg, cfg.NewLogger(os.Stderr))
			if err != nil {
				return err
			}
			defer closeEngine()
			tables, err := eng.Tables(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	svc, closeEngine, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	handler := gateway.New(svc, gateway.Options{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateBurst,
		MetricsPath:       cfg.MetricsPath,
	})
	server := &http.Server{Addr: cfg.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting OData gateway", "addr", cfg.Addr, "driver", cfg.Driver, "entity_sets", svc.EntitySets())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*odata.Service, func(), error) {
	bindings, err := cfg.ServiceBindings()
	if err != nil {
		return nil, nil, err
	}
	eng, closeEngine, err := openEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	svc, err := odata.NewServiceWithEngine(eng, cfg.Service(logger), bindings...)
	if err != nil {
		closeEngine()
		return nil, nil, err
	}
	if cfg.BindAll || len(bindings) == 0 {
		if err := svc.BindAllTables(ctx, edm.OnUnsupported(cfg.OnUnsupported)); err != nil {
			closeEngine()
			return nil, nil, err
		}
	}
	if cfg.Tracing || cfg.ServerTiming {
		opts := []observability.Option{observability.WithServiceName(observability.DefaultServiceName)}
		if cfg.Tracing {
			opts = append(opts,
				observability.WithServiceVersion(version),
				observability.WithTracerProvider(otel.GetTracerProvider()),
				observability.WithMeterProvider(otel.GetMeterProvider()),
				observability.WithDetailedDBTracing(),
				observability.WithQueryOptionTracing(),
			)
		}
		if cfg.ServerTiming {
			opts = append(opts, observability.WithServerTiming())
		}
		if err := svc.SetObservability(*observability.NewConfig(opts...)); err != nil {
			closeEngine()
			return nil, nil, err
		}
	}
	return svc, closeEngine, nil
}

func openEngine(cfg *config.Config, logger *slog.Logger) (engine.Engine, func(), error) {
	if cfg.Driver == config.DriverMemory {
		eng, err := demoEngine()
		return eng, func() {}, err
	}
	eng, err := sqlengine.Open(cfg.Driver, cfg.DSN, sqlengine.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	closeEngine := func() {
		if db, err := eng.DB().DB(); err == nil {
			_ = db.Close()
		}
	}
	return eng, closeEngine, nil
}
