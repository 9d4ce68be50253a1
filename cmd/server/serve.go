package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/biodata-connect/internal/bkash"
	"github.com/iliyamo/biodata-connect/internal/cache"
	"github.com/iliyamo/biodata-connect/internal/config"
	"github.com/iliyamo/biodata-connect/internal/handler"
	"github.com/iliyamo/biodata-connect/internal/middleware"
	"github.com/iliyamo/biodata-connect/internal/queue"
	"github.com/iliyamo/biodata-connect/internal/router"
	"github.com/iliyamo/biodata-connect/internal/service"
)

func serveCmd() *cobra.Command {
	var noEvents bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, noEvents)
		},
	}
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "do not publish ledger events to RabbitMQ")
	return cmd
}

func runServe(ctx context.Context, noEvents bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rdb := redisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	var events service.EventPublisher
	if !noEvents {
		events = queue.NewPublisher(a.cfg.RabbitURL)
	}

	var (
		guard      service.ViewGuard
		tokenCache bkash.TokenCache
	)
	if rdb != nil {
		guard = cache.NewViewGuard(rdb, "pv")
		tokenCache = cache.NewTokenCache(rdb, "")
	}
	gateway := bkash.New(a.cfg.Bkash, tokenCache)

	connSvc := service.NewConnectionService(a.db, a.users, a.biodata, a.conns, events)
	viewSvc := service.NewViewService(a.db, a.biodata, a.views, guard, a.cfg.Location)
	paySvc := service.NewPaymentService(a.db, a.users, a.payments, gateway, a.cfg.TokenPackages, events)
	adminSvc := service.NewAdminService(a.users, a.biodata, a.conns, a.payments)

	biodataH := handler.NewBiodataHandler(a.biodata, connSvc)
	viewH := handler.NewViewHandler(viewSvc)
	connH := handler.NewConnectionHandler(connSvc)
	payH := handler.NewPaymentHandler(paySvc)

	e := echo.New()
	router.UseCommon(e, a.cfg.TrustedProxies)
	router.RegisterRoutes(e, handler.NewHealthHandler(a.db, rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(a.cfg, a.users, a.tokens), a.cfg.JWTSecret)
	router.RegisterPublic(e, biodataH, viewH, a.cfg.JWTSecret,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterMember(e, router.MemberHandlers{
		Biodata:     biodataH,
		Views:       viewH,
		Connections: connH,
		Payments:    payH,
	}, a.cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAdmin(e, handler.NewAdminHandler(adminSvc), connH, payH, a.cfg.JWTSecret)

	addr := ":" + a.cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", a.cfg.Env).Str("db", a.cfg.DBDriver).Msg("listening")
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
