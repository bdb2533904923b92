package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"phreakmail-web/internal/auth"
	"phreakmail-web/internal/config"
	apphttp "phreakmail-web/internal/http"
	"phreakmail-web/internal/repository/sqlstore"
	"phreakmail-web/internal/service"
	"phreakmail-web/internal/session"
	"phreakmail-web/internal/storage"
)

var version = "dev"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Server.LogLevel)
	}
	logger.Infof("starting phreakmail-web %s (%s)", version, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlstore.Open(sqlstore.Config{
		Driver:   sqlstore.Driver(cfg.Database.Driver),
		Path:     cfg.Database.Path,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlstore.NewUserRepository(db)
	domainRepo := sqlstore.NewDomainRepository(db)
	mailboxRepo := sqlstore.NewMailboxRepository(db)
	adminRepo := sqlstore.NewDomainAdminRepository(db)

	// order matters: mailboxes and domain_admins reference earlier tables
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := domainRepo.Init(ctx); err != nil {
		logger.Fatalf("init domain repository: %v", err)
	}
	if err := mailboxRepo.Init(ctx); err != nil {
		logger.Fatalf("init mailbox repository: %v", err)
	}
	if err := adminRepo.Init(ctx); err != nil {
		logger.Fatalf("init domain admin repository: %v", err)
	}

	userService, err := service.NewUserService(userRepo, adminRepo, cfg.Auth.BcryptCost)
	if err != nil {
		logger.Fatalf("setup user service: %v", err)
	}
	directoryService := service.NewDirectoryService(userRepo, domainRepo, mailboxRepo, adminRepo)

	created, err := userService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		logger.Fatalf("bootstrap admin: %v", err)
	}
	if created {
		logger.WithField("username", cfg.Admin.Username).Info("created bootstrap admin")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.KeyDBAddr(),
		Password: cfg.KeyDB.Password,
		DB:       cfg.KeyDB.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("connect keydb at %s: %v", cfg.KeyDBAddr(), err)
	}

	sessionStore := session.NewRedisStore(rdb, []byte(cfg.Session.Secret))
	sessionStore.MaxAge(cfg.Session.MaxAge)
	sessionStore.Options.Secure = cfg.Session.Secure

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	exportService := service.NewExportService(directoryService, storageSvc, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Options{
		Users:      userService,
		Directory:  directoryService,
		Exports:    exportService,
		Sessions:   sessionStore,
		Tokens:     auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute),
		CookieName: cfg.Session.CookieName,
		Version:    version,
		Logger:     logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

// buildStorage returns nil when no bucket is configured; exports are then disabled.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("no storage bucket configured, directory exports disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
