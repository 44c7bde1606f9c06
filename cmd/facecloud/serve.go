package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	_ "github.com/tbourn/facecloud/docs"
	"github.com/tbourn/facecloud/internal/config"
	"github.com/tbourn/facecloud/internal/draft"
	httpapi "github.com/tbourn/facecloud/internal/http"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/observability"
	"github.com/tbourn/facecloud/internal/repo"
)

func newServeCmd() *cobra.Command {
	var (
		migrate       bool
		purgeInterval time.Duration
		drainTimeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, serveOptions{
				Migrate:       migrate,
				PurgeInterval: purgeInterval,
				DrainTimeout:  drainTimeout,
			})
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply schema migrations before serving")
	cmd.Flags().DurationVar(&purgeInterval, "purge-interval", 10*time.Minute, "how often expired drafts, link tokens and idempotency records are deleted (0 disables)")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 15*time.Second, "grace period for in-flight requests on shutdown")
	return cmd
}

type serveOptions struct {
	Migrate       bool
	PurgeInterval time.Duration
	DrainTimeout  time.Duration
	// Listener overrides the TCP listener on cfg.Port.
	Listener net.Listener
	// Ready is closed once the server accepts connections.
	Ready chan<- struct{}
}

// serve runs the API until ctx is canceled, then drains requests, flushes
// pending drafts and stops the tracer.
func serve(ctx context.Context, cfg config.Config, opts serveOptions) error {
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion())
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg)
	if err != nil {
		return err
	}
	if opts.Migrate {
		if err := repo.AutoMigrate(db); err != nil {
			return err
		}
	}

	idp := identity.NewService(db, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.TokenTTL)
	draftRepo := repo.NewDraftRepo(db, cfg.Wizard.DraftTTL)
	draftLog := log.Logger
	drafts := draft.New(draftRepo, draft.Options{Debounce: cfg.Wizard.DraftDebounce, Logger: &draftLog})
	idem := repo.NewIdempotencyRepo(db)

	r := gin.New()
	detach := httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Drafts: drafts, Identity: idp, Idempotency: idem}, cfg)
	defer detach()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	ln := opts.Listener
	if ln == nil {
		if ln, err = net.Listen("tcp", srv.Addr); err != nil {
			return err
		}
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	if opts.PurgeInterval > 0 {
		go runJanitor(janitorCtx, opts.PurgeInterval, draftRepo, idp, idem)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("version", appVersion()).Msg("facecloud listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if opts.Ready != nil {
		close(opts.Ready)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	stopJanitor()
	log.Info().Msg("shutting down")
	dctx, cancel := context.WithTimeout(context.Background(), opts.DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(dctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := drafts.Close(dctx); err != nil {
		log.Warn().Err(err).Msg("draft flush")
	}
	closeDB(db)
	return nil
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// runJanitor deletes expired drafts, auth rows and idempotency records every
// interval until ctx is canceled.
func runJanitor(ctx context.Context, interval time.Duration, targets ...purger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purgeOnce(ctx, targets...)
		}
	}
}

func purgeOnce(ctx context.Context, targets ...purger) int64 {
	var total int64
	for _, p := range targets {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("purge expired")
			continue
		}
		total += n
	}
	if total > 0 {
		log.Debug().Int64("rows", total).Msg("purged expired rows")
	}
	return total
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
