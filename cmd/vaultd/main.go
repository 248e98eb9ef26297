// Command vaultd wires the vault's collaborators — Config Loader, Key
// Manager, Catalog (+ optional Resume Index), Backend Directory/Registry,
// File Service, Metrics, and Audit Log — into one running process exposing
// the C14 health/metrics surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/audit"
	"github.com/kenneth/discord-file-vault/internal/backend"
	"github.com/kenneth/discord-file-vault/internal/backend/discordbot"
	"github.com/kenneth/discord-file-vault/internal/backend/discordhook"
	"github.com/kenneth/discord-file-vault/internal/backend/s3compat"
	"github.com/kenneth/discord-file-vault/internal/catalog"
	"github.com/kenneth/discord-file-vault/internal/config"
	"github.com/kenneth/discord-file-vault/internal/crypto"
	"github.com/kenneth/discord-file-vault/internal/debug"
	"github.com/kenneth/discord-file-vault/internal/directory"
	"github.com/kenneth/discord-file-vault/internal/fileservice"
	"github.com/kenneth/discord-file-vault/internal/httpserver"
	"github.com/kenneth/discord-file-vault/internal/metrics"
	"github.com/kenneth/discord-file-vault/internal/tracing"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the vault's YAML config file")
		addr       = flag.String("addr", ":8443", "Address the health/metrics server listens on")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	watcher, err := config.NewWatcher(*configPath, log, validateReloadableFields)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	defer watcher.Close()
	cfg := watcher.Current()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	debug.InitFromLogLevel(cfg.LogLevel)

	// Only log_level is re-applied on a config change; the rest of this
	// process's collaborators (key manager, registry, catalog, directory)
	// are constructed once below from the config snapshot at startup. A
	// running process never re-wires those from an edited config file —
	// that needs a restart — but its log verbosity can change live.
	go func() {
		lastLevel := cfg.LogLevel
		for range time.Tick(time.Second) {
			if current := watcher.Current(); current.LogLevel != lastLevel {
				if level, err := logrus.ParseLevel(current.LogLevel); err == nil {
					log.SetLevel(level)
					lastLevel = current.LogLevel
					log.WithField("log_level", lastLevel).Info("log level changed on config reload")
				}
			}
		}
	}()

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing)
	if err != nil {
		log.WithError(err).Fatal("failed to set up tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("tracing shutdown did not complete cleanly")
		}
	}()

	keyManager, err := buildKeyManager(context.Background(), cfg.KeyManager)
	if err != nil {
		log.WithError(err).Fatal("failed to construct key manager")
	}

	registry := backend.NewRegistry()
	registry.Register(discordbot.Platform, discordbot.Constructor(log))
	registry.Register(discordhook.Platform, discordhook.Constructor(log))
	registry.Register(s3compat.Platform, s3compat.Constructor(log))

	dir := directory.NewInMemory(registry)
	for name, bc := range cfg.Backends {
		if _, err := dir.Create(context.Background(), name, bc.Platform, bc.Config); err != nil {
			log.WithError(err).WithField("backend", name).Fatal("failed to register backend")
		}
	}

	cat, resumeIndexHealth := buildCatalog(cfg.ResumeIndex, log)

	m := metrics.NewMetricsWithConfig(metrics.Config{EnableBackendLabel: cfg.Metrics.EnableBackendLabel})
	m.SetHardwareAccelerationStatus("aes_ni", crypto.IsHardwareAccelerationEnabled(cfg.Hardware) && runtime.GOARCH != "arm64")
	m.SetHardwareAccelerationStatus("armv8_aes", crypto.IsHardwareAccelerationEnabled(cfg.Hardware) && runtime.GOARCH == "arm64")
	log.WithField("hardware", crypto.GetHardwareAccelerationInfo(&cfg.Hardware)).Debug("cpu crypto acceleration detected")

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger, err = audit.NewLoggerFromConfig(cfg.Audit)
		if err != nil {
			log.WithError(err).Fatal("failed to construct audit logger")
		}
	} else {
		auditLogger = audit.NewDisabledLogger()
	}

	svc := fileservice.New(cat, keyManager, dir, registry, log).WithMetrics(m).WithAudit(auditLogger)
	_ = svc // exercised via the external upload/download/list front end (§4 C14 note), not this process's own routes

	srv := httpserver.New(*addr, m, log, keyManager.HealthCheck, resumeIndexHealth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("addr", *addr).Info("vaultd listening")
	if err := srv.ListenAndServe(ctx); err != nil {
		log.WithError(err).Fatal("http server exited with error")
	}
	log.Info("vaultd stopped")
}

// validateReloadableFields rejects a reloaded config whose log level no
// longer parses, per §4.15's validate-before-swap contract. Fields that
// require a restart to take effect (key manager, backends, resume index)
// are intentionally not checked here — rejecting on their account would
// only block the one field this process does re-apply live.
func validateReloadableFields(cfg *config.AppConfig) error {
	_, err := logrus.ParseLevel(cfg.LogLevel)
	return err
}

// buildKeyManager constructs the active Key Manager (C9) from configuration,
// dialing a KMIP server when configured and otherwise deriving a local
// manager from the master secret named by MasterSecretEnv.
func buildKeyManager(ctx context.Context, cfg config.KeyManagerConfig) (crypto.KeyManager, error) {
	switch cfg.Provider {
	case "kmip":
		return crypto.DialKMIPKeyManager(ctx, cfg.KMIPAddress, nil, cfg.KMIPKeyID)
	case "local", "":
		secret := os.Getenv(cfg.MasterSecretEnv)
		if secret == "" {
			return nil, fmt.Errorf("key manager: env var %q (master_secret_env) is unset or empty", cfg.MasterSecretEnv)
		}
		return crypto.NewLocalKeyManager([]byte(secret))
	default:
		return nil, fmt.Errorf("key manager: unknown provider %q", cfg.Provider)
	}
}

// buildCatalog constructs the Catalog, wrapping it with the Redis-backed
// Resume Index (C12) when an address is configured. The returned readiness
// check probes Redis directly; it is nil when no resume index is configured,
// since a missing accelerator never affects correctness.
func buildCatalog(cfg config.ResumeIndexConfig, log *logrus.Logger) (catalog.Catalog, httpserver.ReadinessCheck) {
	base := catalog.NewInMemory()
	if cfg.Address == "" {
		return base, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Address})
	indexed := catalog.NewResumeIndexed(base, client, cfg.TTL, log)
	health := func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	return indexed, health
}
