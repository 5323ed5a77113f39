package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/courtbook/internal/events"
	"github.com/MarkoPoloResearchLab/courtbook/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/courtbook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/courtbook/internal/oplog"
	"github.com/MarkoPoloResearchLab/courtbook/internal/schema"
	"github.com/MarkoPoloResearchLab/courtbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/courtbook/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagListenAddr        = "listen-addr"
	flagDatabaseURL       = "database-url"
	flagStoreBackend      = "store-backend"
	flagTimezone          = "timezone"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookieName = "session-cookie-name"
	flagProofBaseURL      = "proof-base-url"
	flagPaymentMethods    = "payment-methods"
	flagAMQPURL           = "amqp-url"
	flagAMQPExchange      = "amqp-exchange"
	flagHealthGRPCAddr    = "health-grpc-addr"
	flagRequestTimeout    = "request-timeout"
	flagOpeningTime       = "opening-time"
	flagClosingTime       = "closing-time"
	flagSlotLength        = "slot-length"
	flagHealthInterval    = "health-check-interval"
	flagHealthTimeout     = "health-check-timeout"
	envPrefix             = "COURTBOOK"

	defaultListenAddr     = ":8080"
	defaultDatabaseURL    = "sqlite:///tmp/courtbook.db"
	defaultTimezone       = "America/Caracas"
	defaultProofBaseURL   = "http://localhost:3000/uploads/comprobante"
	defaultAMQPExchange   = "courtbook.events"
	defaultRequestTimeout = 5 * time.Second
	defaultOpeningTime    = "08:00"
	defaultClosingTime    = "23:00"
	defaultSlotLength     = time.Hour
	defaultHealthInterval = 10 * time.Second
	defaultHealthTimeout  = 2 * time.Second

	storeBackendGorm = "gorm"
	storeBackendPgx  = "pgx"
	driverPostgres   = "postgres"
	driverSQLite     = "sqlite"
)

type runtimeConfig struct {
	DatabaseURL    string
	StoreBackend   string
	Timezone       string
	ProofBaseURL   string
	PaymentMethods string
	AMQPURL        string
	AMQPExchange   string
	HealthGRPCAddr string
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	OpeningTime    string
	ClosingTime    string
	SlotLength     time.Duration
	HTTP           httpapi.Config
}

func main() {
	_ = godotenv.Load()
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "courtbookd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	serve := func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	}
	cmd := &cobra.Command{
		Use:           "courtbookd",
		Short:         "Court slot booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: serve,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "database url (sqlite://path or postgres://...)")
	flags.String(flagStoreBackend, storeBackendGorm, "store implementation: gorm or pgx (pgx requires postgres)")
	flags.String(flagTimezone, defaultTimezone, "IANA zone used for today and now")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagSessionSigningKey, "", "TAuth JWT signing key (required for serve)")
	flags.String(flagSessionIssuer, "", "expected JWT issuer")
	flags.String(flagSessionCookieName, "", "JWT cookie name")
	flags.String(flagProofBaseURL, defaultProofBaseURL, "public prefix for payment proof files")
	flags.String(flagPaymentMethods, booking.DefaultPaymentMethods, "accepted payment methods as name[:proof],...")
	flags.String(flagAMQPURL, "", "RabbitMQ url for booking events (optional)")
	flags.String(flagAMQPExchange, defaultAMQPExchange, "RabbitMQ topic exchange")
	flags.String(flagHealthGRPCAddr, "", "gRPC health listen address (optional)")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request store timeout")
	flags.String(flagOpeningTime, defaultOpeningTime, "first bookable time of day (HH:MM)")
	flags.String(flagClosingTime, defaultClosingTime, "closing time of day; the last slot ends here (HH:MM)")
	flags.Duration(flagSlotLength, defaultSlotLength, "length of one bookable slot")
	flags.Duration(flagHealthInterval, defaultHealthInterval, "how often the gRPC health status pings the store")
	flags.Duration(flagHealthTimeout, defaultHealthTimeout, "timeout of a single health ping")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP booking API (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	cmd.AddCommand(newMigrateCommand(cfg))
	cmd.AddCommand(newAdminCommand(cfg))
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flagNames := []string{
		flagListenAddr, flagDatabaseURL, flagStoreBackend, flagTimezone, flagAllowedOrigins,
		flagSessionSigningKey, flagSessionIssuer, flagSessionCookieName, flagProofBaseURL,
		flagPaymentMethods, flagAMQPURL, flagAMQPExchange, flagHealthGRPCAddr, flagRequestTimeout,
		flagOpeningTime, flagClosingTime, flagSlotLength, flagHealthInterval, flagHealthTimeout,
	}
	// Every setting is a root persistent flag, shared by all subcommands.
	rootFlags := cmd.Root().PersistentFlags()
	for _, flagName := range flagNames {
		if err := v.BindPFlag(flagName, rootFlags.Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v.GetString(flagStoreBackend)))
	cfg.Timezone = strings.TrimSpace(v.GetString(flagTimezone))
	cfg.ProofBaseURL = strings.TrimSpace(v.GetString(flagProofBaseURL))
	cfg.PaymentMethods = v.GetString(flagPaymentMethods)
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString(flagAMQPExchange))
	cfg.HealthGRPCAddr = strings.TrimSpace(v.GetString(flagHealthGRPCAddr))
	cfg.HealthInterval = v.GetDuration(flagHealthInterval)
	cfg.HealthTimeout = v.GetDuration(flagHealthTimeout)
	cfg.OpeningTime = strings.TrimSpace(v.GetString(flagOpeningTime))
	cfg.ClosingTime = strings.TrimSpace(v.GetString(flagClosingTime))
	cfg.SlotLength = v.GetDuration(flagSlotLength)
	cfg.HTTP = httpapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagSessionSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagSessionIssuer)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagSessionCookieName)),
		RequestTimeout:    v.GetDuration(flagRequestTimeout),
	}

	switch cfg.StoreBackend {
	case storeBackendGorm:
	case storeBackendPgx:
		if !schema.IsPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("%s=%s requires a postgres database url", flagStoreBackend, storeBackendPgx)
		}
	default:
		return fmt.Errorf("unsupported %s %q", flagStoreBackend, cfg.StoreBackend)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	policy, err := booking.ParsePaymentMethodPolicy(cfg.PaymentMethods)
	if err != nil {
		return err
	}
	template, err := slotTemplate(cfg)
	if err != nil {
		return err
	}

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	options := []booking.ServiceOption{
		booking.WithLocation(location),
		booking.WithPaymentMethodPolicy(policy),
		booking.WithSlotTemplate(template),
		booking.WithProofBaseURL(cfg.ProofBaseURL),
		booking.WithOperationLogger(oplog.New(logger)),
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		options = append(options, booking.WithEventPublisher(publisher))
		logger.Info("publishing booking events", zap.String("exchange", cfg.AMQPExchange))
	}

	bookingService, err := booking.NewService(store, time.Now, options...)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}
	logger.Info("operating hours",
		zap.String("opening", template.Opening().String()),
		zap.String("closing", template.Closing().String()),
		zap.Duration("slot_length", cfg.SlotLength))

	if cfg.HealthGRPCAddr != "" {
		stopHealth, err := startHealthServer(ctx, cfg, store, logger)
		if err != nil {
			return err
		}
		defer stopHealth()
	}

	return httpapi.Run(ctx, cfg.HTTP, httpapi.Dependencies{
		Service: bookingService,
		Pinger:  store,
		Logger:  logger,
	})
}

// slotTemplate builds the operating-hours template from the configured times.
func slotTemplate(cfg *runtimeConfig) (booking.SlotTemplate, error) {
	opening, err := booking.ParseTimeOfDay(cfg.OpeningTime)
	if err != nil {
		return booking.SlotTemplate{}, fmt.Errorf("%s: %w", flagOpeningTime, err)
	}
	closing, err := booking.ParseTimeOfDay(cfg.ClosingTime)
	if err != nil {
		return booking.SlotTemplate{}, fmt.Errorf("%s: %w", flagClosingTime, err)
	}
	return booking.NewSlotTemplate(opening, closing, cfg.SlotLength)
}

func startHealthServer(ctx context.Context, cfg *runtimeConfig, store booking.Store, logger *zap.Logger) (func(), error) {
	listenAddr := cfg.HealthGRPCAddr
	healthServer, err := grpcserver.NewHealthServer(store, logger,
		grpcserver.WithCheckInterval(cfg.HealthInterval),
		grpcserver.WithCheckTimeout(cfg.HealthTimeout),
	)
	if err != nil {
		return nil, err
	}
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("health listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)

	go healthServer.Run(ctx)
	go func() {
		logger.Info("gRPC health starting", zap.String("listen_addr", listenAddr))
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			logger.Error("gRPC health stopped", zap.Error(serveErr))
		}
	}()
	return grpcServer.GracefulStop, nil
}

func openStore(ctx context.Context, cfg *runtimeConfig) (booking.Store, func() error, error) {
	if cfg.StoreBackend == storeBackendPgx {
		if err := schema.Apply(cfg.DatabaseURL, schema.DirectionUp); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database open: %w", err)
		}
		return pgstore.New(pool), func() error { pool.Close(); return nil }, nil
	}

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(gormDB, driver, cfg.DatabaseURL); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	var options []gormstore.Option
	if driver == driverPostgres {
		options = append(options, gormstore.WithTxOptions(&sql.TxOptions{Isolation: sql.LevelSerializable}))
	}
	return gormstore.New(gormDB, options...), cleanup, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := connectionPool(db)
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		// Single writer: sqlite serializes transactions on one connection.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

// connectionPool returns the underlying *sql.DB. When gorm cannot expose it the
// opened pool is closed so the caller has nothing to release.
func connectionPool(db *gorm.DB) (*sql.DB, error) {
	sqlDB, err := db.DB()
	if err == nil {
		return sqlDB, nil
	}
	if closer, ok := db.ConnPool.(io.Closer); ok {
		_ = closer.Close()
	}
	return nil, fmt.Errorf("database pool: %w", err)
}

func resolveDriver(dsn string) (string, string, error) {
	if schema.IsPostgresURL(dsn) {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "courtbook.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema auto-migrates sqlite and applies the embedded migrations on postgres.
func prepareSchema(db *gorm.DB, driver string, databaseURL string) error {
	if driver == driverPostgres {
		return schema.Apply(databaseURL, schema.DirectionUp)
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
