package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/messaging"
	"github.com/mercatus/storefront/internal/notify"
	"github.com/mercatus/storefront/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailAPIURL := os.Getenv("EMAIL_API_URL")
	if emailAPIURL == "" {
		logger.Error("EMAIL_API_URL environment variable is required")
		os.Exit(1)
	}

	fromAddress := os.Getenv("EMAIL_FROM_ADDRESS")
	if fromAddress == "" {
		fromAddress = "orders@storefront.example"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	brokers := strings.Split(kafkaBrokers, ",")

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	handler := notify.NewHandler(emailAPIURL, fromAddress, httpClient, logger)

	createdConsumer := messaging.NewConsumer(brokers, domain.TopicOrderCreated, "notification-worker")
	defer func() { _ = createdConsumer.Close() }()

	paidConsumer := messaging.NewConsumer(brokers, domain.TopicOrderPaid, "notification-worker")
	defer func() { _ = paidConsumer.Close() }()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", brokers)

	var wg sync.WaitGroup
	consume := func(consumer *messaging.Consumer, topic string, handle messaging.HandlerFunc) {
		defer wg.Done()
		if err := consumer.Consume(ctx, handle); err != nil {
			if ctx.Err() == context.Canceled {
				logger.Info("consumer stopped", "topic", topic)
				return
			}
			logger.Error("consumer error", "error", err, "topic", topic)
			cancel()
		}
	}

	wg.Add(2)
	go consume(createdConsumer, domain.TopicOrderCreated, handler.HandleOrderCreated)
	go consume(paidConsumer, domain.TopicOrderPaid, handler.HandleOrderPaid)
	wg.Wait()
}
