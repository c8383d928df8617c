package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	sessionEvictInterval = 5 * time.Minute
	sessionMaxIdle       = time.Hour
	purgeInterval        = 10 * time.Minute
)

// expiryPurger is implemented by stores that need expired rows removed.
type expiryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := kvstore.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer store.Close()
	log.WithField("driver", cfg.Store.Driver).Info("key/value store ready")

	if p, ok := store.(expiryPurger); ok {
		go runPurge(ctx, p, log)
	}

	fee, err := cfg.DeliveryFee()
	if err != nil {
		log.Fatalf("Invalid delivery fee: %v", err)
	}

	responseCache := cache.NewResponseCache(store, log, cache.WithTTL(cfg.Cache.TTL))
	backendClient := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	catalog := service.NewCatalogService(backendClient, responseCache, log)
	orders := service.NewOrderService(backendClient, responseCache, fee, cfg.Orders.PhonePrefix, log)
	sessions := session.NewManager(store, log, session.WithCartOptions(cart.WithTTL(cfg.Cart.TTL)))
	go sessions.RunEviction(ctx, sessionEvictInterval, sessionMaxIdle)

	if len(cfg.Kafka.Brokers) > 0 {
		statusPoller := poller.NewPoller(cfg.Kafka, catalog, log)
		defer statusPoller.Close()
		go statusPoller.Run(ctx)
	} else {
		log.Info("no kafka brokers configured, order status poller disabled")
	}

	router := h.NewRouter(cfg.HTTP, h.Deps{
		Sessions: sessions,
		Catalog:  catalog,
		Orders:   orders,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Storefront starting on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	log.Info("server exited")
}

func runPurge(ctx context.Context, p expiryPurger, log logrus.FieldLogger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.WithError(err).Warn("purge expired entries failed")
				continue
			}
			if n > 0 {
				log.WithField("purged", n).Debug("purged expired entries")
			}
		case <-ctx.Done():
			return
		}
	}
}
