package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/cachexec"
	"github.com/always-cache/cachexec/cache"
	"github.com/always-cache/cachexec/pkg/config"
	"github.com/always-cache/cachexec/pkg/logging"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9111"
)

var (
	// CLI flags
	configFlag         string
	originFlag         string
	hostFlag           string
	portFlag           int
	storeFlag          string
	dbFilenameFlag     string
	updateFlag         time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "YAML configuration file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on")
	flag.StringVar(&storeFlag, "store", "", "Store backend: memory, sqlite or redis")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name for the sqlite store")
	flag.DurationVar(&updateFlag, "update", 0, "Refresh entries expiring within this interval")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stderr)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	conf, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}

	logger, logFile, err := logging.Setup(logging.Config{
		Level:  conf.Log.Level,
		Pretty: conf.Log.Pretty,
		File:   conf.Log.File,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot open log file")
	}
	defer logFile.Close()
	logger = logger.With().Str("version", version).Logger()
	log.Logger = logger

	opts := conf.Cache.Options()
	storeLog := logging.NewLogger("store").With().Str("backend", conf.Store.Backend).Logger()
	store, err := openStore(conf, opts)
	if err != nil {
		storeLog.Fatal().Err(err).Msg("Could not open store")
	}
	defer store.Close()
	storeLog.Info().Int("maxEntries", conf.Cache.MaxEntries).Dur("retainFor", conf.Cache.RetainFor).Msg("Opened store")

	originURL, _ := url.Parse(conf.Origin)
	acache := cachexec.New(cachexec.Config{
		Store:          store,
		OriginURL:      *originURL,
		OriginHost:     conf.OriginHost,
		Timeout:        conf.Transport.Timeout,
		Options:        &opts,
		Rules:          conf.Rules,
		Via:            conf.Via,
		UpdateInterval: conf.Cache.UpdateInterval,
		Logger:         &logger,
	})
	defer acache.Close()

	router := chi.NewRouter()
	router.Handle("/*", acache)
	servers := []*http.Server{{Addr: conf.Listen, Handler: router}}
	if conf.AdminListen != "" {
		servers = append(servers, &http.Server{Addr: conf.AdminListen, Handler: acache.AdminRouter()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, len(servers))
	for _, server := range servers {
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("listen on %s: %w", server.Addr, err)
			}
		}(server)
	}
	log.Info().Msgf("Proxying %s to %s (with hostname '%s')", conf.Listen, conf.Origin, conf.OriginHost)
	if conf.AdminListen != "" {
		log.Info().Msgf("Admin API on %s", conf.AdminListen)
	}

	select {
	case err := <-errs:
		log.Error().Err(err).Msg("Server failed")
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", server.Addr).Msg("Could not shut down cleanly")
		}
	}
}

// loadConfig reads the configuration file, if any, and applies the flags
// on top of it.
func loadConfig() (config.Config, error) {
	conf := config.Default()
	if configFlag != "" {
		var err error
		if conf, err = config.Load(configFlag); err != nil {
			return conf, err
		}
	}
	if originFlag != "" {
		conf.Origin = originFlag
	}
	if hostFlag != "" {
		conf.OriginHost = hostFlag
	}
	if portFlag != 0 {
		conf.Listen = fmt.Sprintf(":%d", portFlag)
	}
	if storeFlag != "" {
		conf.Store.Backend = storeFlag
	}
	if dbFilenameFlag != "" {
		conf.Store.SQLite.File = dbFilenameFlag
	}
	if updateFlag != 0 {
		conf.Cache.UpdateInterval = updateFlag
	}
	if verbosityTraceFlag {
		conf.Log.Level = "trace"
	}
	if logFilenameFlag != "" {
		conf.Log.File = logFilenameFlag
	}
	return conf, conf.Validate()
}

func openStore(conf config.Config, opts rfc9111.Options) (cache.Store, error) {
	storeOpts := cache.Options{
		MaxEntries: conf.Cache.MaxEntries,
		Expires: cache.RetainFor(func(e *message.Entry) time.Duration {
			return rfc9111.FreshnessLifetime(e, opts)
		}, conf.Cache.RetainFor),
	}
	switch conf.Store.Backend {
	case config.BackendSQLite:
		return cache.NewSQLiteStore(conf.Store.SQLite.File, storeOpts)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Store.Redis.Addr,
			DB:       conf.Store.Redis.DB,
			Password: conf.Store.Redis.Password,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, err
		}
		return cache.NewRedisStore(client, conf.Store.Redis.Prefix, storeOpts), nil
	default:
		return cache.NewMemStore(storeOpts), nil
	}
}
