package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/goliatone/go-tenant-auth/config"
	"github.com/goliatone/go-tenant-auth/logging"
	"github.com/goliatone/go-tenant-auth/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zl, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	logger := logging.NewAdapter(zl)

	os.Exit(shutdown(zl, run(cfg, logger)))
}

// shutdown reports err and flushes zl before the process exits, since
// os.Exit skips deferred calls.
func shutdown(zl *zap.Logger, err error) int {
	if err != nil {
		zl.Error("authd exited", zap.Error(err))
	}
	_ = zl.Sync()
	if err != nil {
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *logging.Adapter) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	group, err := auth.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if group != nil && !group.IsZero() {
		logger.Info("applied migrations %s", group.String())
	}

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()

	svc := auth.NewService(repo, cfg,
		auth.WithLogger(logger),
		auth.WithNotifier(newNotifier(cfg, logger)),
		auth.WithHasher(auth.NewBcryptHasher(
			auth.WithHashCost(cfg.HashCost),
			auth.WithHashConcurrency(cfg.HashConcurrency),
		)),
		auth.WithRefreshUserCheck(cfg.RefreshRecheck),
		auth.WithActivitySink(auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
			logger.Info("activity %s", print.MaybePrettyJSON(activitymap.Normalize(e)))
			return nil
		})),
	)
	defer svc.Wait()

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{
			AppName:      "authd",
			ErrorHandler: auth.ErrorHandler(logger),
			ReadTimeout:  time.Second * 15,
			WriteTimeout: time.Second * 15,
		})
		app.Use(recover.New())
		app.Use(requestid.New())
		return app
	})

	auth.RegisterAuthRoutes(srv.Router().Group("/auth"), svc,
		auth.WithControllerLogger(logger),
		auth.WithTenantHeader(cfg.TenantHeader),
	)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.HTTPAddr)
		errc <- srv.Serve(cfg.HTTPAddr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func openDB(dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func newNotifier(cfg *config.Config, logger *logging.Adapter) auth.Notifier {
	if cfg.SMTP.Host == "" {
		logger.Warn("AUTH_SMTP_HOST not set, notifications are written to the log")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		AppName:  cfg.SMTP.AppName,
		ResetTTL: cfg.ResetTokenTTL,
		OTPTTL:   cfg.OTPTTL,
	})
}
