package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"users-api/internal/config"
	"users-api/internal/events"
	apphttp "users-api/internal/http"
	"users-api/internal/repository"
	"users-api/internal/repository/memory"
	"users-api/internal/repository/sqlite"
	"users-api/internal/service"
)

var (
	flagConfig string
	flagAddr   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "users-api",
	Short:         "In-memory users collection over HTTP",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./config.* if present)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	v := config.NewViper(flagConfig)
	if err := v.BindPFlag("server.addr", cmd.Flags().Lookup("addr")); err != nil {
		return fmt.Errorf("bind addr flag: %w", err)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup store: %w", err)
	}
	defer closeStore()

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup events: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warnf("close event publisher: %v", err)
		}
	}()

	userService := service.NewUserService(users, publisher, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, logger, cfg.Server.AllowReset)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apphttp.WithCORS(router),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("http shutdown: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("bye")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.UserRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		repo := sqlite.NewUserRepository(db)
		if err := repo.Init(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init user repository: %w", err)
		}
		logger.Infof("using sqlite user store at %s", cfg.Store.SQLitePath)
		return repo, func() { db.Close() }, nil
	default:
		logger.Info("using in-memory user store")
		return memory.NewUserRepository(), func() {}, nil
	}
}

func buildPublisher(cfg config.Config, logger *logrus.Logger) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case config.EventsKafka:
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("publishing user events to kafka topic %s", cfg.Events.Topic)
		return pub, nil
	case config.EventsLog:
		return events.NewLogPublisher(logger), nil
	default:
		return events.Noop{}, nil
	}
}
