/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kdex-tech/kdex-gadgets/internal/cache"
	"github.com/kdex-tech/kdex-gadgets/internal/config"
	"github.com/kdex-tech/kdex-gadgets/internal/feature"
	"github.com/kdex-tech/kdex-gadgets/internal/lockeddomain"
	"github.com/kdex-tech/kdex-gadgets/internal/urlgen"
	"github.com/kdex-tech/kdex-gadgets/internal/web/server"

	_ "net/http/pprof"
)

const envPrefix = "GADGETS_"

// nolint:gocyclo
func main() {
	// a missing .env is normal outside of local development
	_ = godotenv.Load()

	var cacheNamespace string
	var cacheTTL time.Duration
	var configFile string
	var development bool
	var featuresDir string
	var featuresReloadInterval time.Duration
	var lockedDomains bool
	var logLevel int
	var pprofAddr string
	var valkeyAddr string
	var webserverAddr string

	flag.StringVar(&cacheNamespace, "cache-namespace", envString("CACHE_NAMESPACE", "gadgets"),
		"The prefix of every cache key.")
	flag.DurationVar(&cacheTTL, "cache-ttl", envDuration("CACHE_TTL", 24*time.Hour),
		"How long memoized feature checksums are kept.")
	flag.StringVar(&configFile, "config-file", envString("CONFIG_FILE", "/config.yaml"),
		"The path to the container configuration yaml file.")
	flag.BoolVar(&development, "development", envBool("DEVELOPMENT", false),
		"Use human readable development logging.")
	flag.StringVar(&featuresDir, "features-dir", envString("FEATURES_DIR", "/features"),
		"The directory holding one sub directory of scripts per feature.")
	flag.DurationVar(&featuresReloadInterval, "features-reload-interval", envDuration("FEATURES_RELOAD_INTERVAL", 0),
		"How often the features directory is re-read. 0 disables reloading.")
	flag.BoolVar(&lockedDomains, "locked-domains", envBool("LOCKED_DOMAINS", true),
		"Render gadgets that require it on their own locked domain.")
	flag.IntVar(&logLevel, "log-level", envInt("LOG_LEVEL", 0),
		"The logr verbosity. 1 logs every generated url.")
	flag.StringVar(&pprofAddr, "pprof-bind-address", envString("PPROF_BIND_ADDRESS", ""),
		"The address the pprof endpoint binds to. If not set, the pprof endpoint is disabled.")
	flag.StringVar(&valkeyAddr, "valkey-address", envString("VALKEY_ADDRESS", ""),
		"The valkey server memoizing checksums. If not set, an in process cache is used.")
	flag.StringVar(&webserverAddr, "webserver-bind-address", envString("WEBSERVER_BIND_ADDRESS", ":8090"),
		"The address the webserver binds to.")
	flag.Parse()

	logger, err := newLogger(development, logLevel)
	if err != nil {
		panic(err)
	}
	setupLog := logger.WithName("setup")

	containers, err := config.Load(configFile)
	if err != nil {
		setupLog.Error(err, "unable to load container configuration", "config-file", configFile)
		os.Exit(1)
	}
	setupLog.Info("loaded container configuration", "containers", containers.Containers())

	// generations are local to this process, so a shared valkey needs a
	// namespace per instance
	instanceNamespace := cacheNamespace
	if valkeyAddr != "" {
		instanceNamespace = cacheNamespace + ":" + uuid.NewString()
	}
	cacheManager, err := cache.NewCacheManager(valkeyAddr, instanceNamespace, &cacheTTL)
	if err != nil {
		setupLog.Error(err, "unable to create cache manager", "valkey-address", valkeyAddr)
		os.Exit(1)
	}

	features := feature.NewStore(func(generation int64) {
		if err := cacheManager.Cycle(generation, false); err != nil {
			logger.Error(err, "unable to cycle cache", "generation", generation)
		}
	}, logger.WithName("features"))

	if err := loadFeatures(features, featuresDir, setupLog); err != nil {
		setupLog.Error(err, "unable to load features", "features-dir", featuresDir)
		os.Exit(1)
	}

	lockedDomainService, err := lockeddomain.NewHashService(containers, lockedDomains, logger.WithName("locked-domain"))
	if err != nil {
		setupLog.Error(err, "unable to create locked domain service")
		os.Exit(1)
	}

	generator := urlgen.NewDefaultGenerator(
		containers,
		lockedDomainService,
		feature.NewChecksummer(features, cacheManager.GetCache(feature.CacheClass, cache.CacheOptions{}), logger.WithName("checksum")),
		logger.WithName("urlgen"),
	)

	if pprofAddr != "" && strings.Contains(pprofAddr, ":") {
		setupLog.Info("starting pprof server", "address", pprofAddr)
		go func() {
			runtime.SetBlockProfileRate(1)
			log.Println(http.ListenAndServe(pprofAddr, nil))
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if featuresReloadInterval > 0 {
		go reloadFeatures(ctx, features, featuresDir, featuresReloadInterval, logger.WithName("features"))
	}

	srv := server.New(webserverAddr, containers, generator, lockedDomainService, logger.WithName("http"))

	go func() {
		<-ctx.Done()
		setupLog.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "problem shutting down web server")
		}
	}()

	setupLog.Info("starting web server",
		"address", webserverAddr,
		"features", features.Count(),
		"locked-domains", lockedDomainService.Enabled(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		setupLog.Error(err, "problem running web server")
		os.Exit(1)
	}
}

func newLogger(development bool, level int) (logr.Logger, error) {
	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	// logr V(n) maps to zap level -n
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-level))

	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

func loadFeatures(features *feature.Store, dir string, log logr.Logger) error {
	resources, err := feature.LoadDir(dir)
	if err != nil {
		return err
	}
	if features.Replace(resources...) {
		log.Info("features loaded", "dir", dir, "count", len(resources), "generation", features.Generation())
	}
	return nil
}

func reloadFeatures(ctx context.Context, features *feature.Store, dir string, interval time.Duration, log logr.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loadFeatures(features, dir, log); err != nil {
				log.Error(err, "reloading features, keeping the previous set", "dir", dir)
			}
		}
	}
}

func envString(name, defaultValue string) string {
	if value, ok := os.LookupEnv(envPrefix + name); ok {
		return value
	}
	return defaultValue
}

func envBool(name string, defaultValue bool) bool {
	b, err := strconv.ParseBool(envString(name, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return b
}

func envDuration(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(envString(name, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return d
}

func envInt(name string, defaultValue int) int {
	i, err := strconv.Atoi(envString(name, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return i
}
