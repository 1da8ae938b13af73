package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storeroom-backend/internal/alerts/sweep"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/config"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
	"storeroom-backend/internal/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "storeroom",
	Short:         "Storeroom inventory backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, seedAdminCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is everything the commands share.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	conn    *sql.DB
	svcs    *server.Services
	disp    *notify.Dispatcher
	sweeper *sweep.Sweeper

	rabbit *notify.Rabbit
	rdb    *redis.Client
}

// bootstrap loads config, opens the database, applies the schema and wires
// services. Rabbit and Redis are optional and skipped when not configured.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)
	logger.WithField("mode", cfg.Mode).Info("starting")

	conn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, conn, cfg.DB.Driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a := &app{cfg: cfg, log: logger, conn: conn}

	var (
		mailer notify.Mailer = notify.LogMailer{Log: logger}
		sink   notify.EventSink
	)
	if cfg.RabbitMQ.URL != "" {
		r, err := notify.DialRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		a.rabbit = r
		if cfg.RabbitMQ.MailQueue != "" {
			if err := r.BindQueue(cfg.RabbitMQ.MailQueue, "mail.send"); err != nil {
				a.close()
				return nil, fmt.Errorf("bind mail queue: %w", err)
			}
		}
		mailer = notify.AMQPMailer{Rabbit: r, From: cfg.Mail.From}
		sink = notify.AMQPPublisher{Rabbit: r}
	}

	var locker *redislock.Client
	if rdb, l, err := sweep.ConnectRedis(ctx, cfg.Redis); err != nil {
		logger.WithError(err).Warn("redis unavailable, sweeps run without a lock")
	} else {
		a.rdb, locker = rdb, l
	}

	clock, idgen := ids.RealClock{}, ids.NewULIDGen()
	a.svcs = server.NewServices(conn, cfg, clock, idgen)
	a.disp = notify.NewDispatcher(a.svcs.Notifications, a.svcs.Accounts.Directory(), mailer, clock, idgen, logger,
		notify.Options{QueueSize: 256, AdminEmail: cfg.Mail.AdminEmail, Sink: sink})
	a.sweeper = sweep.New(a.svcs.Items.Ledger(), a.svcs.Releases, a.svcs.Eval, a.disp, clock, locker, logger)
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.rabbit != nil {
		a.rabbit.Close()
	}
	_ = a.conn.Close()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, notification dispatcher and sweep schedule",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sched := cron.New(cron.WithLocation(time.UTC))
	if err := a.sweeper.Schedule(sched, a.cfg.Alerts); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.NewRouter(a.cfg, a.log, a.svcs, a.disp, a.sweeper),
		ReadHeaderTimeout: 10 * time.Second,
	}
	cert, key := certFiles(a.cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.disp.Run(gctx) })
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})
	g.Go(func() error {
		a.log.WithFields(logrus.Fields{"addr": srv.Addr, "tls": cert != ""}).Info("listening")
		var err error
		if cert != "" {
			err = srv.ListenAndServeTLS(cert, key)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// certFiles resolves the certificate pair under config/tls/<mode>/. Empty
// names mean plain HTTP.
func certFiles(cfg *config.Config) (string, string) {
	c := cfg.Server.Certificate
	if c.Cert == "" || c.Key == "" {
		return "", ""
	}
	dir := filepath.Join("config", "tls", cfg.Mode)
	return filepath.Join(dir, c.Cert), filepath.Join(dir, c.Key)
}
