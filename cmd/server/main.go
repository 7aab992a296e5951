package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sony/sonyflake"

	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/database"
	"github.com/zarlabs/zar/internal/geoip"
	"github.com/zarlabs/zar/internal/handler"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/middleware"
	"github.com/zarlabs/zar/internal/monitor"
	"github.com/zarlabs/zar/internal/repository"
	"github.com/zarlabs/zar/internal/safebrowsing"
	"github.com/zarlabs/zar/internal/security"
	"github.com/zarlabs/zar/internal/service"
	"github.com/zarlabs/zar/internal/storage"
)

// Version is set at build time using ldflags:
// go build -ldflags "-X main.Version=1.2.0"
var Version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Server.Env, cfg.Log.Level, cfg.Log.Dir)
	defer log.Sync()

	log.Infow("starting zar",
		"version", Version,
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	// Fail fast: a dependency we cannot reach at startup would only fail
	// louder under traffic.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	postgres, err := database.NewPostgresDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalw("postgres unreachable", "error", err)
	}
	defer postgres.Close()

	if err := database.Migrate(cfg.Database.URL); err != nil {
		log.Fatalw("migrations failed", "error", err)
	}
	log.Infow("postgres ready")

	redis, err := database.NewRedisDB(ctx, cfg.Redis)
	if err != nil {
		log.Fatalw("redis unreachable", "error", err)
	}
	defer redis.Close()
	log.Infow("redis ready")

	// GeoIP and the object store are optional: without them clicks lose
	// geolocation and new URLs lose QR codes, nothing else.
	geo, err := geoip.Open(cfg.GeoIP.DBPath)
	if err != nil {
		log.Warnw("geoip database unavailable, geolocation disabled", "error", err)
	}
	defer geo.Close()

	var store storage.ObjectStore
	if cfg.Storage.Enabled() {
		r2, err := storage.NewR2Store(cfg.Storage)
		if err != nil {
			log.Warnw("object store unavailable, QR uploads disabled", "error", err)
		} else {
			store = r2
		}
	}

	var checker service.ThreatChecker
	if cfg.SafeBrowsing.Enabled() {
		checker = safebrowsing.New(cfg.SafeBrowsing)
	} else {
		log.Warnw("safe browsing key missing, domain screening disabled")
	}

	ids, err := sonyflake.New(sonyflake.Settings{})
	if err != nil {
		log.Warnw("sonyflake unavailable, request IDs fall back to UUIDs", "error", err)
		ids = nil
	}

	mon := monitor.New(cfg.Monitor.SampleInterval, log)

	urlRepo := repository.NewURLRepository(postgres.Pool)
	userRepo := repository.NewUserRepository(postgres.Pool)
	sessionRepo := repository.NewSessionRepository(postgres.Pool)
	domainRepo := repository.NewDomainRepository(postgres.Pool)
	logRepo := repository.NewLogRepository(postgres.Pool)
	rateLimitRepo := repository.NewRateLimitRepository(postgres.Pool)

	tokens := security.NewTokenService(cfg.Auth, cfg.Server.IsProduction())

	analytics := service.NewAnalytics(geo)
	qr := service.NewQRUploader(store, log)
	domainService := service.NewDomainService(domainRepo, redis, checker, cfg.SafeBrowsing.CacheTTL, log)
	urlService := service.NewURLService(urlRepo, domainService, analytics, qr, cfg.Shortener, cfg.Server, log)
	authService := service.NewAuthService(userRepo, sessionRepo, tokens, cfg.Auth, log)

	urlHandler := handler.NewURLHandler(urlService, authService, tokens)
	authHandler := handler.NewAuthHandler(authService, tokens)
	userHandler := handler.NewUserHandler(urlService, authService)
	adminHandler := handler.NewAdminHandler(
		authService, urlService, domainService,
		logRepo, rateLimitRepo, mon, tokens, redis, cfg.Cache,
	)
	healthHandler := handler.NewHealthHandler(postgres, redis, Version)
	homeHandler := handler.NewHomeHandler()

	observer := middleware.NewObserver(mon, ids, log)
	funnel := middleware.NewErrorFunnel(logRepo, mon, log)
	rateLimiter := middleware.NewRateLimiter(redis, rateLimitRepo, cfg.RateLimit, log)
	responseCache := middleware.NewResponseCache(redis, cfg.Cache, log)

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Order matters. The observer wraps everything so timing and the access
	// log cover the whole chain; the funnel sits inside the headers so its
	// error responses still carry them; body cap, rate limit, and cache run
	// inside the funnel so their rejections render through it.
	router.Use(observer.Middleware())
	router.Use(middleware.SecurityHeaders(cfg.Server.IsProduction()))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(funnel.Middleware())
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodySize))
	router.Use(rateLimiter.Middleware())
	if cfg.Cache.Enabled {
		router.Use(responseCache.Middleware())
	}

	router.GET("/", homeHandler.Home)
	router.GET("/static/app.js", homeHandler.Script)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/live", healthHandler.Live)

	// Short links resolve at the root, where BASE_URL points.
	router.GET("/:short_code", urlHandler.Redirect)
	router.POST("/:short_code/verify", urlHandler.Verify)

	api := router.Group("/api/v1")
	{
		api.POST("/url", middleware.OptionalUser(tokens), urlHandler.Shorten)
		api.GET("/url/:short_code/stats", urlHandler.Stats)

		// The same resolution surface again, for API clients.
		api.GET("/:short_code", urlHandler.Redirect)
		api.POST("/:short_code/verify", urlHandler.Verify)

		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/logout/all", middleware.RequireUser(tokens), authHandler.LogoutAll)
			auth.GET("/me", middleware.RequireUser(tokens), authHandler.Me)
		}

		user := api.Group("/user", middleware.RequireUser(tokens))
		{
			user.GET("/urls", userHandler.URLs)
			user.DELETE("/url", userHandler.DeleteURL)
			user.PATCH("/url/:short_code/favorite", userHandler.SetFavorite)
			user.GET("/sessions", userHandler.Sessions)
			user.GET("/stats", userHandler.Stats)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", adminHandler.Login)

			guarded := admin.Group("", middleware.RequireAdmin(tokens))
			{
				guarded.GET("/users", adminHandler.Users)
				guarded.DELETE("/users/:user_id", adminHandler.DeleteUser)
				guarded.GET("/urls", adminHandler.URLs)
				guarded.DELETE("/urls/:short_code", adminHandler.DeleteURL)
				guarded.GET("/domains", adminHandler.Domains)
				guarded.PATCH("/domains/:id", adminHandler.SetDomainSecure)
				guarded.GET("/logs", adminHandler.Logs)
				guarded.GET("/logs/stats", adminHandler.LogStats)
				guarded.GET("/rate-limits", adminHandler.RateLimits)
				guarded.GET("/metrics", adminHandler.Metrics)
				guarded.GET("/sessions/:user_id", adminHandler.UserSessions)
				guarded.DELETE("/cache", adminHandler.FlushCache)
			}
		}
	}

	router.NoRoute(handler.NoRoute)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go mon.Run(bgCtx)
	go runCleanup(bgCtx, urlService, authService, cfg.Monitor.CleanupInterval, log)

	go func() {
		log.Infow("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Graceful shutdown: stop accepting, drain in-flight requests, then
	// stop background jobs and close connections via the defers above.
	quit, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-quit.Done()

	log.Infow("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
	bgCancel()

	log.Infow("server stopped")
}

// runCleanup periodically soft-deletes expired URLs and purges dead
// sessions. Runs until the context is cancelled.
func runCleanup(ctx context.Context, urls *service.URLService, auth *service.AuthService, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := urls.CleanupExpired(tickCtx); err != nil {
				log.Errorw("expired URL cleanup failed", "error", err)
			}
			if err := auth.PurgeSessions(tickCtx); err != nil {
				log.Errorw("session purge failed", "error", err)
			}
			cancel()
		}
	}
}
