package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mercatus/storefront/internal/auth"
	"github.com/mercatus/storefront/internal/cart"
	"github.com/mercatus/storefront/internal/catalog"
	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/httpapi"
	"github.com/mercatus/storefront/internal/inventory"
	"github.com/mercatus/storefront/internal/messaging"
	"github.com/mercatus/storefront/internal/orders"
	"github.com/mercatus/storefront/internal/payment"
	"github.com/mercatus/storefront/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeSecretKey == "" {
		logger.Error("STRIPE_SECRET_KEY environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var createdProducer, paidProducer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		createdProducer = messaging.NewProducer(brokers, domain.TopicOrderCreated)
		defer func() { _ = createdProducer.Close() }()
		paidProducer = messaging.NewProducer(brokers, domain.TopicOrderPaid)
		defer func() { _ = paidProducer.Close() }()
	}

	pricing := orders.Pricing{
		FreeShippingThreshold: getenvInt64("PRICING_FREE_SHIPPING_CENTS", orders.DefaultPricing().FreeShippingThreshold),
		FlatShippingPrice:     getenvInt64("PRICING_FLAT_SHIPPING_CENTS", orders.DefaultPricing().FlatShippingPrice),
		TaxRateBasisPoints:    getenvInt64("PRICING_TAX_BASIS_POINTS", orders.DefaultPricing().TaxRateBasisPoints),
	}

	resp := httpapi.NewResponder(logger, getenv("APP_ENV", "production") != "production")

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	ledger := inventory.NewLedger(db)
	catalogRepo := catalog.NewRepository(db)
	cartRepo := cart.NewRepository(db)
	ordersRepo := orders.NewRepository(db, ledger, pricing)
	gateway := payment.NewStripeClient(getenv("STRIPE_API_URL", "https://api.stripe.com"), stripeSecretKey, httpClient)

	authenticator := auth.NewAuthenticator([]byte(jwtSecret), resp, logger)
	catalogHandler := catalog.NewHandler(catalogRepo, resp, logger)
	cartHandler := cart.NewHandler(cartRepo, resp, logger)
	inventoryHandler := inventory.NewHandler(ledger, resp, logger)
	ordersHandler, err := orders.NewHandler(ordersRepo, cartRepo, createdProducer, resp, logger)
	if err != nil {
		logger.Error("failed to create orders handler", "error", err)
		os.Exit(1)
	}
	paymentHandler := payment.NewHandler(gateway, ordersRepo, paidProducer,
		getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		resp, logger)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metricsHandler)

	route("GET /products", catalogHandler.HandleList)
	route("GET /products/{id}", catalogHandler.HandleGet)
	route("POST /products", authenticator.RequireAdmin(catalogHandler.HandleCreate))
	route("PUT /products/{id}", authenticator.RequireAdmin(catalogHandler.HandleUpdate))
	route("DELETE /products/{id}", authenticator.RequireAdmin(catalogHandler.HandleDelete))

	route("GET /cart", authenticator.RequireUser(cartHandler.HandleGet))
	route("POST /cart", authenticator.RequireUser(cartHandler.HandleAdd))
	route("PUT /cart/{productId}", authenticator.RequireUser(cartHandler.HandleUpdate))
	route("DELETE /cart/{productId}", authenticator.RequireUser(cartHandler.HandleRemove))
	route("DELETE /cart", authenticator.RequireUser(cartHandler.HandleClear))

	route("POST /orders", authenticator.RequireUser(ordersHandler.HandleCreate))
	route("GET /orders/mine", authenticator.RequireUser(ordersHandler.HandleListMine))
	route("GET /orders/{id}", authenticator.RequireUser(ordersHandler.HandleGet))
	route("GET /orders", authenticator.RequireAdmin(ordersHandler.HandleList))
	route("PUT /orders/{id}/status", authenticator.RequireAdmin(ordersHandler.HandleUpdateStatus))
	route("DELETE /orders/{id}", authenticator.RequireUser(ordersHandler.HandleDelete))

	route("POST /checkout/session", authenticator.RequireUser(paymentHandler.HandleCreateSession))
	route("POST /checkout/confirm", authenticator.RequireUser(paymentHandler.HandleConfirm))

	route("GET /inventory/stock", authenticator.RequireAdmin(inventoryHandler.HandleListStock))
	route("GET /inventory/stock/{productId}", authenticator.RequireAdmin(inventoryHandler.HandleGetStock))
	route("POST /inventory/stock/{productId}/restock", authenticator.RequireAdmin(inventoryHandler.HandleRestock))

	port := getenv("PORT", "8080")

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
