package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"lexform-backend/internal/admin"
	"lexform-backend/internal/ai"
	"lexform-backend/internal/auth"
	"lexform-backend/internal/config"
	"lexform-backend/internal/docgen"
	"lexform-backend/internal/engine"
	"lexform-backend/internal/enrichment"
	"lexform-backend/internal/instrument"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/org"
	"lexform-backend/internal/storage"
	"lexform-backend/internal/store"
)

const templateCacheTTL = 5 * time.Minute

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Instrumentation
	var buffer *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		buffer = instrument.NewEventBuffer(db, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buffer.Stop()
		go instrument.RunCleanup(ctx, db, cfg.Instrumentation.RetentionDays, time.Hour)
	}

	// 5. Template registry, membership cache
	reg := metadata.NewRegistry(db.Repo().LoadTemplateTree, templateCacheTTL, nil)
	orgService := org.NewService(db, time.Duration(cfg.MembershipCacheTTLSeconds)*time.Second, nil)

	// 6. Enrichment oracle
	var oracle enrichment.Oracle = enrichment.NewHeuristicOracle()
	if cfg.Enrichment.LLMEnabled {
		if provider := ai.NewProvider(cfg.AI); provider != nil {
			oracle = enrichment.NewLLMOracle(provider, oracle)
			log.Printf("Enrichment uses model %s", provider.Model())
		} else {
			log.Println("WARN: enrichment.llm_enabled is set but ai.api_key or ai.model is missing; using heuristics")
		}
	}

	// 7. Document generation
	files := storage.NewLocalStorage(cfg.Storage.LocalPath)
	generator, err := docgen.New(cfg.DocGen, files)
	if err != nil {
		log.Fatalf("Failed to configure document generation: %v", err)
	}

	// 8. Session manager
	sessions := engine.NewSessionManager(engine.ManagerConfig{
		Store:         db,
		Registry:      reg,
		Oracle:        oracle,
		LookupTimeout: time.Duration(cfg.Enrichment.LookupTimeoutMs) * time.Millisecond,
		Generator:     generator,
		IdleTTL:       time.Duration(cfg.SessionIdleTTLSeconds) * time.Second,
	})
	defer sessions.Close()
	go sessions.RunEviction(ctx, time.Minute)

	// 9. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, buffer))

	// 10. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 11. Auth middleware for all API routes
	authMW := auth.AuthMiddleware(cfg.JWTSecret, orgService)
	userMW := instrument.UserContextMiddleware()

	// 12. Organizations and template administration
	org.RegisterOrgRoutes(app, org.NewHandler(orgService), authMW, userMW)
	admin.RegisterAdminRoutes(app, admin.NewHandler(admin.NewService(db, reg)), authMW, userMW)

	// 13. Form runtime
	engine.RegisterSessionRoutes(app, engine.NewSessionHandler(sessions), authMW, userMW)

	// 14. Event inspection (platform admins). The /api/admin group above
	// has already authenticated the request.
	events := instrument.NewEventHandler(db)
	ev := app.Group("/api/admin/events", auth.RequireAdmin())
	ev.Get("/", events.List)
	ev.Get("/trace/:traceId", events.GetTrace)

	// 15. Start server
	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("WARN: shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("ERROR: server stopped: %v", err)
	}
}
