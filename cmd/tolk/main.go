package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/dasmlab/tolk/pkg/app"
	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/config"
	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/server"
	"github.com/sirupsen/logrus"
)

var (
	envFile = flag.String("env-file", ".env", "Optional .env file to load before reading the environment")

	// Overrides for values loaded from the environment
	mtEngine    = flag.String("mt-engine", "", "Translation engine: libretranslate, argos, microsoft or openai")
	mtURL       = flag.String("mt-url", "", "Base URL for translation engine API")
	botLanguage = flag.String("bot-language", "", "Language the bot logic operates in")
	grpcPort    = flag.Int("grpc-port", 0, "gRPC health server port")
	metricsPort = flag.Int("metrics-port", 0, "HTTP health and metrics port")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")

	probeInterval   = flag.Duration("probe-interval", 30*time.Second, "Interval between translator health probes")
	janitorInterval = flag.Duration("janitor-interval", 5*time.Minute, "Interval between in-memory session evictions")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	cfg, err := config.Parse(*envFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.Apply(config.Overrides{
		Engine:      *mtEngine,
		MTURL:       *mtURL,
		BotLanguage: *botLanguage,
		LogLevel:    *logLevel,
		GRPCPort:    *grpcPort,
		MetricsPort: *metricsPort,
	})
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.Level())

	logger.WithFields(logrus.Fields{
		"grpc_port":    cfg.GRPCPort,
		"metrics_port": cfg.MetricsPort,
		"mt_engine":    cfg.Engine,
		"mt_url":       cfg.MTURL,
		"bot_language": cfg.BotLanguage,
		"log_level":    cfg.Level().String(),
	}).Info("Starting tolk")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build translation pipeline")
	}
	defer a.Close()

	// Verify translator is healthy
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	logger.Info("Checking translator health...")
	if err := a.Translator.CheckHealth(checkCtx); err != nil {
		logger.WithError(err).Warn("Translator health check failed, but continuing anyway")
		logger.Warn("Messages will pass through untranslated until the translator is ready")
	} else {
		logger.Info("Translator health check passed")
	}
	cancel()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"port": cfg.GRPCPort,
		}).Fatal("Failed to listen on port")
	}

	grpcServer := grpc.NewServer(
		grpc.Creds(insecure.NewCredentials()),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               10 * time.Second,
		}),
	)
	health := server.NewHealthReporter(a.Translator, logger)
	grpc_health_v1.RegisterHealthServer(grpcServer, health.Server())
	reflection.Register(grpcServer)

	httpServer := server.NewHTTPServer(a.Translator, language.Default, language.Code(cfg.BotLanguage), logger, cfg.MetricsPort)
	console := bot.NewConsoleAdapter(os.Stdin, os.Stdout, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"port": cfg.GRPCPort,
		}).Info("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return httpServer.Start(gctx)
	})
	g.Go(func() error {
		health.Run(gctx, *probeInterval)
		return nil
	})
	g.Go(func() error {
		a.RunJanitor(gctx, *janitorInterval)
		return nil
	})
	g.Go(func() error {
		defer stop()
		logger.Info("Console bot ready, type a message")
		return console.Listen(gctx, a.Bot(console, bot.EchoHandler))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown timeout, forcing stop...")
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server error")
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
