package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"emoji-api/internal/blob"
	"emoji-api/internal/database"
	"emoji-api/internal/handlers/emoji"
	"emoji-api/internal/memstore"
	"emoji-api/internal/middleware"
	"emoji-api/internal/replicate"
	"emoji-api/internal/routers"
	"emoji-api/internal/shared"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	// Flags / ENV Variables
	writeDSN := flag.String("dsn", "", "Write mysql DSN (needs parseTime=true)")
	readDSN := flag.String("read-dsn", "", "Read replica mysql DSN (needs parseTime=true)")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	redisAddr := flag.String("redis-addr", "", "Redis host:port")
	debug := flag.Bool("debug", false, "Debug enabled")
	port := flag.Int("port", 80, "HTTP listen port")
	storeKind := flag.String("store", "mysql", "Backing stores: mysql (mysql, redis and gcs) or memory (local runs)")
	localAPIKey := flag.String("local-api-key", "", "API key (32 chars) seeded into the memory store for local runs")

	replicateAPIToken := flag.String("replicate-api-token", "", "Replicate API token")
	replicateEndpoint := flag.String("replicate-endpoint", "", "Replicate endpoint")
	generationParams := flag.String("generation-params", "", "YAML file overriding the generation parameter block")
	pollInterval := flag.Duration("poll-interval", shared.PredictionPollingInterval, "Prediction status polling interval")
	pollMaxWait := flag.Duration("poll-max-wait", shared.PredictionPollingMaxWait, "Max time to wait for a prediction")
	refundOnFailure := flag.Bool("refund-on-failure", false, "Give the credit back when generation fails")
	defaultCredits := flag.Int64("default-credits", shared.DefaultUserCredits, "Credits granted on profile init")

	gcsBucket := flag.String("gcs-bucket", shared.DefaultBucket, "GCS bucket for emoji images")
	gcsPublicURL := flag.String("gcs-public-url", shared.DefaultPublicURL, "Public base url for stored images")
	gcsCredentialsFile := flag.String("gcs-credentials-file", "", "GCS service account file, defaults to ADC")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()

	params, err := emoji.LoadParams(*generationParams)
	if err != nil {
		panic(err)
	}

	provider, err := replicate.NewClient(*replicateAPIToken, *replicateEndpoint)
	if err != nil {
		panic(err)
	}

	var (
		ledger      emoji.CreditLedger
		emojis      emoji.EmojiStore
		users       middleware.UserLookup
		blobs       emoji.BlobStore
		redisClient redis.Cmdable
		localBlobs  *memstore.Blobs
	)
	switch *storeKind {
	case "mysql":
		// Write DB init
		writeDB, err := sql.Open("mysql", *writeDSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = writeDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		defer func() { _ = writeDB.Close() }()

		// Read db init
		readDB, err := sql.Open("mysql", *readDSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing readSqlClient: %s", err))
		}
		err = readDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed to ping read replica sql db: %s", err))
		}
		defer func() { _ = readDB.Close() }()

		// Load Redis connection
		client := redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: "",
			DB:       0,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
		defer func() { _ = client.Close() }()
		redisClient = client

		var gcsOpts []option.ClientOption
		if *gcsCredentialsFile != "" {
			gcsOpts = append(gcsOpts, option.WithCredentialsFile(*gcsCredentialsFile))
		}
		gcs, err := blob.NewGCSStore(context.Background(), *gcsBucket, *gcsPublicURL, gcsOpts...)
		if err != nil {
			panic(fmt.Sprintf("failed initializing gcs client: %s", err))
		}

		store := database.NewStore(writeDB, readDB, log)
		ledger, emojis, users, blobs = store, store, store, gcs
	case "memory":
		store := memstore.New()
		if *localAPIKey != "" {
			store.AddAPIKey(*localAPIKey, "local")
			store.SetCredits("local", *defaultCredits)
		}
		localBlobs = memstore.NewBlobs(fmt.Sprintf("http://localhost:%d/blobs", *port))
		ledger, emojis, users, blobs = store, store, store, localBlobs
		log.Warnw("Using in-memory stores, nothing survives a restart", "local_api_key_set", *localAPIKey != "")
	default:
		panic(fmt.Sprintf("unknown store %q", *storeKind))
	}

	eh := emoji.NewEmojiHandler(ledger, emojis, provider, blobs, log, emoji.Config{
		Params:          params,
		PollInterval:    *pollInterval,
		PollMaxWait:     *pollMaxWait,
		RefundOnFailure: *refundOnFailure,
		DefaultCredits:  *defaultCredits,
	})

	e := echo.New()
	e.GET("/ping", func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}

			if apiKey != *metricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})
	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	if localBlobs != nil {
		e.GET("/blobs/:name", func(c echo.Context) error {
			data, err := localBlobs.Get(c.Request().Context(), c.Param("name"))
			if err != nil {
				return c.NoContent(http.StatusNotFound)
			}
			return c.Blob(http.StatusOK, shared.ArtifactContentType, data)
		})
	}

	routers.RegisterEmojiRoutes(base, eh, middleware.NewUserManager(redisClient, users, log))
	log.Infow("Emoji routes registered", "store", *storeKind, "bucket", *gcsBucket, "refund_on_failure", *refundOnFailure)

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", *port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
