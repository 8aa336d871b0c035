package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/common/db"
	"neurojudge/internal/common/http/middleware"
	"neurojudge/internal/common/mq"
	"neurojudge/internal/common/storage"
	"neurojudge/internal/evaluator/auth"
	"neurojudge/internal/evaluator/controller"
	"neurojudge/internal/evaluator/engine"
	"neurojudge/internal/evaluator/github"
	"neurojudge/internal/evaluator/loader"
	"neurojudge/internal/evaluator/notify"
	"neurojudge/internal/evaluator/repository"
	"neurojudge/internal/evaluator/sandbox"
	"neurojudge/internal/evaluator/service"
	"neurojudge/internal/evaluator/vcs"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/evaluator.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	once := flag.Bool("once", false, "Run a single evaluation pass and exit")
	issueFor := flag.String("issue-token", "", "Print an admin token for the named operator and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of an issued token, 0 for none")
	tokenRole := flag.String("token-role", auth.RoleAdmin, "Role carried by an issued token")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(2)
	}
	if *once {
		appCfg.Loop.Once = true
	}
	if *issueFor != "" {
		tokens := auth.NewTokenService(appCfg.Server.Auth.Secret, appCfg.Server.Auth.Issuer)
		token, err := tokens.Issue(*issueFor, *tokenRole, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			os.Exit(2)
		}
		fmt.Println(token)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(2)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "evaluator stopped",
			zap.Int("code", int(appErr.GetCode(err))),
			zap.Error(err),
		)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()
	logger.Info(ctx, "starting evaluator", zap.String("config", describe(appCfg)))

	redisCache, err := cache.DialRedis(ctx, appCfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		_ = redisCache.Close()
	}()

	coll, closeColl, err := openCollection(ctx, appCfg, redisCache)
	if err != nil {
		return err
	}
	defer closeColl()
	statusRepo := repository.NewStatusRepository(coll)

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio failed: %w", err)
	}
	if err := objStorage.EnsureBucket(ctx, appCfg.Benchmark.ResultsBucket); err != nil {
		return fmt.Errorf("ensure results bucket failed: %w", err)
	}

	var mqClient *mq.KafkaQueue
	if appCfg.Kafka.Enabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = mqClient.Close()
		}()
	}

	ghClient, err := github.NewClient(appCfg.GitHub)
	if err != nil {
		return err
	}
	ghClient.WithUserCache(redisCache)
	var channels []notify.Notifier
	if appCfg.Notifications.GitHub {
		channels = append(channels, notify.NewGitHubNotifier(ghClient))
	}
	if appCfg.Notifications.Kafka && mqClient != nil {
		channels = append(channels, notify.NewMQNotifier(mqClient, appCfg.Kafka.OutcomeTopic))
	}
	notifier := notify.NewDispatcher(appCfg.Notifications.Enabled, channels...)

	runner, err := sandbox.NewRunner(appCfg.Sandbox)
	if err != nil {
		return err
	}
	entryLoader := loader.NewProcessLoader(runner, appCfg.Loader)
	materializer := vcs.NewGitMaterializer(appCfg.Git)

	datasets := engine.NewDatasetCache(appCfg.Engine.Cache, appCfg.Benchmark.Bucket, appCfg.Benchmark.Root, objStorage, redisCache)
	eng, err := engine.NewLocalEngine(appCfg.Engine.Home, datasets)
	if err != nil {
		return err
	}

	publisher := service.NewPublisher(objStorage, appCfg.Benchmark.ResultsBucket, appCfg.Benchmark.Namespace)
	validatorSvc := service.NewValidator(materializer, entryLoader, statusRepo, notifier)
	executorSvc := service.NewExecutor(service.ExecutorConfig{
		Master:   appCfg.Engine.Master,
		App:      appCfg.Engine.App,
		Datasets: appCfg.Benchmark.Datasets,
	}, materializer, entryLoader, eng, publisher, statusRepo, notifier)
	processor := service.NewProcessor(statusRepo, validatorSvc, executorSvc)
	loop := service.NewLoop(appCfg.Loop, ghClient, processor, redisCache)

	httpServer := buildHTTPServer(ctx, appCfg.Server, statusRepo, redisCache)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info(gctx, "evaluator http server started", zap.String("addr", appCfg.Server.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancelShutdown()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := loop.Run(gctx)
		if appCfg.Loop.Once {
			cancel()
		}
		return err
	})

	if mqClient != nil {
		handler := service.NewRequeueHandler(statusRepo)
		opts := mq.SubscribeOptions{
			ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
			MaxRetries:      appCfg.Kafka.MaxRetries,
			RetryDelay:      appCfg.Kafka.RetryDelay,
			DeadLetterTopic: appCfg.Kafka.DeadLetterTopic,
		}
		g.Go(func() error {
			return mqClient.Consume(gctx, appCfg.Kafka.RequeueTopic, handler.Handle, opts)
		})
	}

	err = g.Wait()
	logger.Info(ctx, "evaluator shut down")
	return err
}

func openCollection(ctx context.Context, cfg *AppConfig, redisCache *cache.RedisCache) (repository.Collection, func(), error) {
	switch cfg.Status.Driver {
	case driverMySQL:
		mysqlDB, err := db.OpenMySQL(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		coll := repository.NewMySQLCollection(mysqlDB)
		if err := coll.EnsureSchema(ctx); err != nil {
			_ = mysqlDB.Close()
			return nil, nil, err
		}
		return coll, func() { _ = mysqlDB.Close() }, nil
	case driverBadger:
		bdb, err := repository.OpenBadger(cfg.Badger)
		if err != nil {
			return nil, nil, appErr.Wrap(err, appErr.ConfigurationError)
		}
		return repository.NewBadgerCollection(bdb), func() { _ = bdb.Close() }, nil
	case driverMemory:
		logger.Warn(ctx, "memory status store selected, state is lost on exit")
		return repository.NewMemoryCollection(), func() {}, nil
	default:
		return repository.NewRedisCollection(redisCache), func() {}, nil
	}
}

func buildHTTPServer(ctx context.Context, cfg ServerConfig, statusRepo *repository.StatusRepository, redisCache *cache.RedisCache) *http.Server {
	var admin []gin.HandlerFunc
	if cfg.Auth.Secret != "" {
		tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer)
		admin = append(admin, middleware.AuthMiddleware(tokens, middleware.AuthPolicy{Roles: []string{auth.RoleAdmin}}))
	} else {
		logger.Warn(ctx, "server.auth.secret is empty, status reset routes are unauthenticated")
	}
	limiter := auth.NewRateLimiter(redisCache, cfg.RateLimit.Window, time.Second)
	admin = append(admin, middleware.RateLimitMiddleware(limiter, "status.clear", cfg.RateLimit))

	router := controller.NewRouter(controller.NewStatusController(statusRepo), controller.RouterOptions{
		Middleware: []gin.HandlerFunc{requestLogger()},
		Admin:      admin,
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
