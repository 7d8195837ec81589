package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bluealbum/watchroom/internal/api"
	"github.com/bluealbum/watchroom/internal/config"
	"github.com/bluealbum/watchroom/internal/database"
	"github.com/bluealbum/watchroom/internal/presence"
	"github.com/bluealbum/watchroom/internal/server"
	"github.com/bluealbum/watchroom/internal/session"
	"github.com/bluealbum/watchroom/internal/stats"
	_ "github.com/lib/pq"
)

const defaultSigningKey = "qkBU5sln6mLTVnZ4FKenjsBYRjCy/7BehOpLHxHX1f4="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	reapInterval   time.Duration
	idleTimeout    time.Duration
)

func main() {
	logger := log.New(os.Stderr, "[watchroom] ", log.LstdFlags)

	defaults, err := config.FromEnv()
	if err != nil {
		logger.Fatal("environment:", err)
	}
	if defaults.SigningSecret == "" {
		defaults.SigningSecret = defaultSigningKey
	}

	flag.StringVar(&addr, "addr", defaults.ServerAddr, "server address")
	flag.StringVar(&dsn, "dsn", defaults.DatabaseDSN, "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaults.SigningSecret, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&reapInterval, "reap-interval", defaults.ReapInterval, "interval between idle room sweeps")
	flag.DurationVar(&idleTimeout, "idle-timeout", defaults.IdleTimeout, "how long an empty room survives before being reaped")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaults.AllowedOrigins
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, reapInterval, idleTimeout)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgWatchRoomRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	registry := presence.NewRegistry()
	manager := session.NewManager(logger, dbConn, registry, statsUpdater)
	gateway := server.NewGateway(logger, manager, registry, statsUpdater)
	reaper := session.NewReaper(logger, manager, gateway, cfg.ReapInterval, cfg.IdleTimeout)

	srv := api.NewWatchRoomApp(mux, logger, dbConn, gateway, manager, reaper, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go reaper.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("stopping idle room reaper...")
	reaper.Stop()

	logger.Println("closing client connections...")
	gateway.Shutdown()

	logger.Println("shutdown complete")
}
