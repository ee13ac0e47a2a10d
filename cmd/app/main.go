package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	rbac "github.com/bohemiyan/scopedrbac"
	"github.com/bohemiyan/scopedrbac/internal/config"
	"github.com/bohemiyan/scopedrbac/internal/db"
	"github.com/bohemiyan/scopedrbac/internal/routes"
	"github.com/bohemiyan/scopedrbac/zapLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile := zapLogger.Init(cfg.LogFile)
	defer logFile.Close()
	defer zapLogger.Base.Sync()

	ctx := context.Background()

	gormDB, err := db.NewPostgresDB(ctx, cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to PostgreSQL database")
	defer db.Close(gormDB)

	store := rbac.NewGormStore(gormDB)
	if cfg.AutoMigrate {
		if err := store.AutoMigrate(); err != nil {
			zapLogger.Log.Fatalf("Failed to migrate schema: %v", err)
		}
	}

	var redisDB *redis.Client
	if cfg.RedisEnabled() {
		redisDB, err = db.NewRedisClient(ctx, cfg)
		if err != nil {
			zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
		}
		zapLogger.Log.Info("Successfully connected to Redis")
		defer redisDB.Close()
	}

	catalog := rbac.NewCachedCatalog(store, redisDB, cfg.CatalogCachePrefix, cfg.CatalogCacheTTL, zapLogger.Base)
	if cfg.SeedCatalog {
		if err := rbac.SeedPermissions(ctx, catalog, rbac.DefaultPermissions); err != nil {
			zapLogger.Log.Fatalf("Failed to seed permission catalog: %v", err)
		}
	}
	if err := catalog.WarmCache(ctx); err != nil {
		zapLogger.Log.Warnf("Failed to warm catalog cache: %v", err)
	}

	engine, err := rbac.New(rbac.Config{
		Store:       store,
		Directory:   store,
		Catalog:     catalog,
		Logger:      zapLogger.Base,
		BulkWorkers: cfg.BulkCheckWorkers,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize RBAC engine: %v", err)
	}

	if err := bootstrapAdmin(ctx, engine, cfg); err != nil {
		zapLogger.Log.Fatalf("Failed to bootstrap admin: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: routes.ErrorHandler})
	app.Use(zapLogger.FiberLoggingMiddleware(logFile))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	routes.Setup(app, engine, []byte(cfg.JWTSecret))

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		zapLogger.Log.Info("Shutting down")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.AppPort)
	zapLogger.Log.Infof("Server started on port %d", cfg.AppPort)
	if err := app.Listen(addr); err != nil {
		zapLogger.Log.Fatalf("Server failed: %v", err)
	}
}

// bootstrapAdmin gives the configured administrator the permissions needed to
// manage everyone else's.
func bootstrapAdmin(ctx context.Context, engine *rbac.RBAC, cfg *config.Config) error {
	if cfg.BootstrapAdminID == "" || cfg.BootstrapCompanyID == "" {
		return nil
	}
	for _, code := range []string{rbac.PermPermissionsManage, rbac.PermAuditView} {
		_, err := engine.AddUserPermission(ctx, rbac.AddGrantInput{
			ActorAdminID:   "system",
			GranteeID:      cfg.BootstrapAdminID,
			CompanyID:      cfg.BootstrapCompanyID,
			PermissionCode: code,
			Scope:          rbac.ScopeCompanyAll,
		})
		if err != nil && !errors.Is(err, rbac.ErrConflict) {
			return err
		}
	}
	return nil
}
