// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	alertsUseCase "github.com/keyfold/keyfold/internal/alerts/usecase"
	auditRepository "github.com/keyfold/keyfold/internal/audit/repository"
	auditService "github.com/keyfold/keyfold/internal/audit/service"
	auditUseCase "github.com/keyfold/keyfold/internal/audit/usecase"
	"github.com/keyfold/keyfold/internal/config"
	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
	cryptoService "github.com/keyfold/keyfold/internal/crypto/service"
	"github.com/keyfold/keyfold/internal/database"
	internalHTTP "github.com/keyfold/keyfold/internal/http"
	"github.com/keyfold/keyfold/internal/metrics"
	secretsRepository "github.com/keyfold/keyfold/internal/secrets/repository"
	secretsService "github.com/keyfold/keyfold/internal/secrets/service"
	secretsUseCase "github.com/keyfold/keyfold/internal/secrets/usecase"
)

// alertQueueSize bounds the async alert dispatcher queue.
const alertQueueSize = 256

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB

	// Managers
	txManager database.TxManager

	// Crypto
	keyDeriver  cryptoService.KeyDeriver
	aeadManager cryptoService.AEADManager

	// Repositories
	secretRepo secretsUseCase.SecretRepository
	auditRepo  auditUseCase.AuditRepository

	// Audit chain
	chainHasher auditService.ChainHasher
	recorder    auditUseCase.Recorder
	verifier    auditUseCase.Verifier

	// Alerts and throttling
	dispatcher *alertsUseCase.AsyncDispatcher
	limiter    *secretsService.LimiterStore

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	metricsServer   *internalHTTP.MetricsServer

	// Use Cases
	secretManager secretsUseCase.SecretManager

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	keyDeriverInit      sync.Once
	aeadManagerInit     sync.Once
	secretRepoInit      sync.Once
	auditRepoInit       sync.Once
	chainHasherInit     sync.Once
	recorderInit        sync.Once
	verifierInit        sync.Once
	dispatcherInit      sync.Once
	limiterInit         sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	metricsServerInit   sync.Once
	secretManagerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// KeyDeriver returns the PBKDF2 key deriver, resolving the optional
// derivation pepper on first access.
func (c *Container) KeyDeriver() (cryptoService.KeyDeriver, error) {
	var err error
	c.keyDeriverInit.Do(func() {
		c.keyDeriver, err = c.initKeyDeriver()
		if err != nil {
			c.initErrors["keyDeriver"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyDeriver"]; exists {
		return nil, storedErr
	}
	return c.keyDeriver, nil
}

// AEADManager returns the cipher factory.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// SecretRepository returns the secret repository instance.
func (c *Container) SecretRepository() (secretsUseCase.SecretRepository, error) {
	var err error
	c.secretRepoInit.Do(func() {
		c.secretRepo, err = c.initSecretRepository()
		if err != nil {
			c.initErrors["secretRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretRepo"]; exists {
		return nil, storedErr
	}
	return c.secretRepo, nil
}

// AuditRepository returns the audit entry repository instance.
func (c *Container) AuditRepository() (auditUseCase.AuditRepository, error) {
	var err error
	c.auditRepoInit.Do(func() {
		c.auditRepo, err = c.initAuditRepository()
		if err != nil {
			c.initErrors["auditRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditRepo"]; exists {
		return nil, storedErr
	}
	return c.auditRepo, nil
}

// ChainHasher returns the audit chain hasher.
func (c *Container) ChainHasher() auditService.ChainHasher {
	c.chainHasherInit.Do(func() {
		c.chainHasher = auditService.NewChainHasher()
	})
	return c.chainHasher
}

// Recorder returns the audit recorder instance.
func (c *Container) Recorder() (auditUseCase.Recorder, error) {
	var err error
	c.recorderInit.Do(func() {
		c.recorder, err = c.initRecorder()
		if err != nil {
			c.initErrors["recorder"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recorder"]; exists {
		return nil, storedErr
	}
	return c.recorder, nil
}

// Verifier returns the audit chain verifier instance.
func (c *Container) Verifier() (auditUseCase.Verifier, error) {
	var err error
	c.verifierInit.Do(func() {
		c.verifier, err = c.initVerifier()
		if err != nil {
			c.initErrors["verifier"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["verifier"]; exists {
		return nil, storedErr
	}
	return c.verifier, nil
}

// Dispatcher returns the alert dispatcher. Alerts are logged through the
// structured logger behind a bounded async queue.
func (c *Container) Dispatcher() alertsUseCase.Dispatcher {
	c.dispatcherInit.Do(func() {
		logger := c.Logger()
		c.dispatcher = alertsUseCase.NewAsyncDispatcher(
			alertsUseCase.NewLogDispatcher(logger), logger, alertQueueSize,
		)
	})
	return c.dispatcher
}

// AttemptLimiter returns the per-principal read throttle.
func (c *Container) AttemptLimiter() *secretsService.LimiterStore {
	c.limiterInit.Do(func() {
		c.limiter = secretsService.NewAttemptLimiter(secretsService.LimiterConfig{
			MaxFailures:    c.config.ThrottleMaxFailures,
			BaseDelay:      c.config.ThrottleBaseDelay,
			MaxDelay:       c.config.ThrottleMaxDelay,
			ReadsPerSecond: c.config.ThrottleReadsPerSecond,
			Burst:          c.config.ThrottleBurst,
		})
	})
	return c.limiter
}

// MetricsProvider returns the OpenTelemetry metrics provider backed by a
// Prometheus registry.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. When metrics are
// disabled in configuration a no-op recorder is returned.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// MetricsServer returns the HTTP server exposing the Prometheus metrics
// endpoint. Returns nil when metrics are disabled in configuration.
func (c *Container) MetricsServer() (*internalHTTP.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}

		var provider *metrics.Provider
		provider, err = c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		c.metricsServer = internalHTTP.NewMetricsServer(
			c.config.MetricsHost, c.config.MetricsPort, c.Logger(), provider,
		)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// SecretManager returns the secret lifecycle use case.
func (c *Container) SecretManager() (secretsUseCase.SecretManager, error) {
	var err error
	c.secretManagerInit.Do(func() {
		c.secretManager, err = c.initSecretManager()
		if err != nil {
			c.initErrors["secretManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretManager"]; exists {
		return nil, storedErr
	}
	return c.secretManager, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Drain pending alerts before tearing down the logger's consumers
	if c.dispatcher != nil {
		c.dispatcher.Close()
	}

	// Stop the throttle cleanup loop if initialized
	if c.limiter != nil {
		c.limiter.Close()
	}

	// Shutdown metrics provider if initialized
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Close database connection if initialized
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	// Return combined errors if any occurred
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initKeyDeriver resolves the derivation pepper and creates the deriver.
// The pepper copy held here is zeroed once the deriver owns its own copy.
func (c *Container) initKeyDeriver() (cryptoService.KeyDeriver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pepper, err := cryptoService.LoadPepper(ctx, cryptoService.PepperConfig{
		Base64:           c.config.PepperBase64,
		KeeperURI:        c.config.PepperKeeperURI,
		CiphertextBase64: c.config.PepperCiphertextBase64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load derivation pepper: %w", err)
	}
	defer cryptoDomain.Zero(pepper)

	deriver, err := cryptoService.NewPBKDF2Deriver(uint(c.config.KDFParamsVersion), pepper)
	if err != nil {
		return nil, fmt.Errorf("failed to create key deriver: %w", err)
	}
	return deriver, nil
}

// initSecretRepository creates the secret repository instance.
func (c *Container) initSecretRepository() (secretsUseCase.SecretRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for secret repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return secretsRepository.NewMySQLSecretRepository(db), nil
	case "postgres":
		return secretsRepository.NewPostgreSQLSecretRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initAuditRepository creates the audit entry repository instance.
func (c *Container) initAuditRepository() (auditUseCase.AuditRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for audit repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return auditRepository.NewMySQLAuditRepository(db), nil
	case "postgres":
		return auditRepository.NewPostgreSQLAuditRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initRecorder creates the audit recorder with its dependencies.
func (c *Container) initRecorder() (auditUseCase.Recorder, error) {
	auditRepo, err := c.AuditRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for recorder: %w", err)
	}
	return auditUseCase.NewRecorder(auditRepo, c.ChainHasher()), nil
}

// initVerifier creates the audit chain verifier with its dependencies.
func (c *Container) initVerifier() (auditUseCase.Verifier, error) {
	auditRepo, err := c.AuditRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for verifier: %w", err)
	}
	return auditUseCase.NewVerifier(auditRepo, c.ChainHasher(), c.Dispatcher()), nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initSecretManager creates the secret lifecycle use case with all its dependencies.
func (c *Container) initSecretManager() (secretsUseCase.SecretManager, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for secret manager: %w", err)
	}

	secretRepo, err := c.SecretRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret repository for secret manager: %w", err)
	}

	recorder, err := c.Recorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get recorder for secret manager: %w", err)
	}

	keyDeriver, err := c.KeyDeriver()
	if err != nil {
		return nil, fmt.Errorf("failed to get key deriver for secret manager: %w", err)
	}

	manager := secretsUseCase.NewSecretManager(
		txManager,
		secretRepo,
		recorder,
		keyDeriver,
		c.AEADManager(),
		c.AttemptLimiter(),
		c.Dispatcher(),
		c.Logger(),
	)

	if !c.config.MetricsEnabled {
		return manager, nil
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for secret manager: %w", err)
	}
	return secretsUseCase.NewSecretManagerWithMetrics(manager, businessMetrics), nil
}
