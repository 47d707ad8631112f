package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/aws"
	"github.com/imrishuroy/grocery-orderflow/internal/catalog"
	"github.com/imrishuroy/grocery-orderflow/internal/config"
	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/events"
	"github.com/imrishuroy/grocery-orderflow/internal/handlers"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
	"github.com/imrishuroy/grocery-orderflow/internal/metrics"
	"github.com/imrishuroy/grocery-orderflow/internal/orders"
	"github.com/imrishuroy/grocery-orderflow/internal/payments"
	"github.com/imrishuroy/grocery-orderflow/internal/pricing"
	"github.com/imrishuroy/grocery-orderflow/internal/storage/mongo"
	"github.com/imrishuroy/grocery-orderflow/internal/validation"
)

// app is the wired service graph behind the router.
type app struct {
	orders      *orders.Service
	coupons     *coupons.Service
	payments    *payments.Service
	idempotency idempotency.Repository
	metrics     *metrics.Metrics
	logger      *slog.Logger
	ping        func(context.Context) error
	closers     []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

// buildApp connects the storage driver, event publisher and catalog named
// by cfg and assembles the services.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, metrics: metrics.New(cfg.Metrics.Namespace)}

	var clients *aws.AWSClients
	awsClients := func() (*aws.AWSClients, error) {
		if clients != nil {
			return clients, nil
		}
		c, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to init aws clients: %w", err)
		}
		clients = c
		return c, nil
	}

	var (
		couponRepo  coupons.Repository
		orderRepo   orders.Repository
		paymentRepo payments.Repository
	)
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close(context.Background()) })
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		couponRepo = store.Coupons()
		orderRepo = store.Orders()
		paymentRepo = store.Payments()
		a.idempotency = store.Idempotency(cfg.Idempotency.TTL)
		a.ping = store.Ping
	default:
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		d := cfg.Storage.DynamoDB
		couponStore := coupons.NewStore(c.DynamoDB, d.CouponsTable)
		idemStore := idempotency.NewStore(c.DynamoDB, d.IdempotencyTable, cfg.Idempotency.TTL)
		couponRepo = couponStore
		orderRepo = orders.NewStore(c.DynamoDB, d.OrdersTable, couponStore, idemStore)
		paymentRepo = payments.NewStore(c.DynamoDB, d.PaymentsTable)
		a.idempotency = idemStore
	}

	var publisher events.Publisher = events.Discard{}
	switch cfg.Events.Driver {
	case config.EventsSQS:
		c, err := awsClients()
		if err != nil {
			a.Close()
			return nil, err
		}
		publisher = events.NewSQSPublisher(c.SQS, cfg.Events.QueueURL)
	case config.EventsAMQP:
		p, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
	}

	var lookup catalog.Lookup = catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	if cfg.Catalog.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Catalog.RedisAddr})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		lookup = catalog.NewCachedLookup(lookup, rdb, cfg.Catalog.CacheTTL, logger)
	}

	a.coupons = coupons.NewService(couponRepo, logger)
	a.payments = payments.NewService(paymentRepo, logger)
	a.orders = orders.NewService(orders.Config{
		Repo:           orderRepo,
		Catalog:        lookup,
		Coupons:        a.coupons,
		Pricing:        pricing.NewCalculator(cfg.Pricing.DeliveryFee, cfg.Pricing.TaxRate),
		Payments:       a.payments,
		Publisher:      publisher,
		Recorder:       a.metrics,
		Logger:         logger,
		IdempotencyTTL: cfg.Idempotency.TTL,
	})
	return a, nil
}

func setupRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestID(), handlers.RequestLogger(a.logger), a.metrics.Middleware(), auth.Middleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		if a.ping != nil {
			if err := a.ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	v := validation.New()
	handlers.RegisterCouponRoutes(r, handlers.CouponConfig{
		Coupons:   a.coupons,
		Validator: v,
		Logger:    a.logger,
	})
	handlers.RegisterOrdersRoutes(r, handlers.HandlerConfig{
		Orders:      a.orders,
		Idempotency: a.idempotency,
		Validator:   v,
		Logger:      a.logger,
	})
	handlers.RegisterPaymentRoutes(r, handlers.PaymentConfig{
		Payments:  a.payments,
		Validator: v,
		Logger:    a.logger,
	})
	return r
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := setupRouter(a)

	if cfg.Server.RunLocal {
		logger.Info("running local server", "addr", cfg.Server.Addr)
		if err := r.Run(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to run local server: %w", err)
		}
		return nil
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
	return nil
}
