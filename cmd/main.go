// Command shopcal is the scheduling backend. It exposes a serve command that
// wires together all layers and runs the HTTP server, and a migrate command
// that applies the database schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shopcal/backend/internal/config"
	"github.com/shopcal/backend/internal/database"
	"github.com/shopcal/backend/internal/handler"
	"github.com/shopcal/backend/internal/logging"
	"github.com/shopcal/backend/internal/repository"
	"github.com/shopcal/backend/internal/service"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "shopcal",
		Short:         "Multi-tenant booking scheduling backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := database.NewPool(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()
			return database.Migrate(ctx, pool)
		},
	}
}

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, logger, migrateUp)
		},
	}
	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "apply the database schema before serving")
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, migrateUp bool) error {
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres", zap.String("database", cfg.Database.Name))

	if migrateUp {
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	businessRepo := repository.NewBusinessRepository(pool)
	serviceRepo := repository.NewServiceRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	bookingSvc := service.NewBookingService(serviceRepo, reservationRepo, businessRepo, cfg.StoreTimeout)
	bookingHandler := handler.NewBookingHandler(bookingSvc)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.AccessLog(logger))
	r.Use(handler.CORS(cfg.CORSAllowedOrigins))

	r.Get("/", handler.Root)
	r.Get("/health", handler.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/businesses", bookingHandler.ListBusinesses)
		r.Get("/services", bookingHandler.ListServices)
		r.Get("/bookings", bookingHandler.ListBookings)
		r.Post("/bookings", bookingHandler.CreateBooking)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
