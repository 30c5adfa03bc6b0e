// Package server assembles the HTTP router from the feature packages and
// runs it.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/admin"
	"github.com/mikepea/biolink/pkg/biolink/apikeys"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/avatars"
	"github.com/mikepea/biolink/pkg/biolink/cache"
	"github.com/mikepea/biolink/pkg/biolink/config"
	"github.com/mikepea/biolink/pkg/biolink/importexport"
	"github.com/mikepea/biolink/pkg/biolink/links"
	"github.com/mikepea/biolink/pkg/biolink/locale"
	"github.com/mikepea/biolink/pkg/biolink/logging"
	"github.com/mikepea/biolink/pkg/biolink/oidc"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
	"github.com/mikepea/biolink/pkg/biolink/qrcode"
	"github.com/mikepea/biolink/pkg/biolink/ratelimit"
	"github.com/mikepea/biolink/pkg/biolink/web"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "github.com/mikepea/biolink/api/swagger"
)

// Backends are the optional external stores. A nil field turns the feature
// off: no view cache, no avatar uploads.
type Backends struct {
	Cache   cache.Store
	Storage avatars.Storage
}

// NewRouter wires every route. The public /:username page is registered
// last so that fixed paths win.
func NewRouter(cfg config.Config, db *gorm.DB, b Backends) *gin.Engine {
	lang, ok := locale.Parse(cfg.DefaultLanguage)
	if !ok {
		lang = locale.Default
	}

	r := gin.New()
	// client IPs come from X-Forwarded-For only behind a configured proxy
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Strs("proxies", cfg.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		logging.RequestID(),
		logging.Middleware(),
		logging.Recovery(),
		auth.Sessions(cfg.SessionSecret, cfg.IsProduction()),
		auth.LoadSession(),
		auth.Gate(),
		locale.Middleware(lang),
	)

	limiter := ratelimit.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	views := profiles.NewAssembler(db, b.Cache, cfg.CacheTTL)
	profileSvc := profiles.NewService(db, views)
	linkSvc := links.NewService(db, views)
	authSvc := auth.NewService(db, profileSvc)
	oidcHandler := oidc.NewHandler(db, cfg.BaseURL, profileSvc)
	avatarHandler := avatars.NewHandler(b.Storage, profileSvc)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			status := http.StatusOK
			body := gin.H{"status": "ok", "service": "biolink"}
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
			c.JSON(status, body)
		})

		auth.NewHandler(authSvc).RegisterRoutes(api.Group("/auth", limiter.Middleware()))

		// API key management needs a JWT
		apikeys.NewHandler(db).RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Session, JWT or API key
		protected := api.Group("", apikeys.CombinedAuthMiddleware(db))
		links.NewHandler(linkSvc).RegisterRoutes(protected)
		importexport.NewHandler(linkSvc).RegisterRoutes(protected)
		profilesHandler := profiles.NewHandler(profileSvc, views)
		profilesHandler.RegisterRoutes(protected)
		avatarHandler.RegisterRoutes(protected)

		profilesHandler.RegisterPublicRoutes(api.Group("", limiter.Middleware()), cfg.ProvisionToken)

		adminGroup := api.Group("/admin", auth.AuthMiddleware(), auth.RequireAdmin())
		admin.NewHandler(db, views).RegisterRoutes(adminGroup)

		oidcHandler.RegisterRoutes(api.Group("/oidc"))
		oidcHandler.RegisterAdminRoutes(adminGroup.Group("/oidc"))
	}

	locale.RegisterRoutes(r)
	qrcode.NewHandler(profileSvc, cfg.BaseURL).RegisterRoutes(r)

	pages := web.NewHandler(web.Deps{
		Auth:      authSvc,
		Profiles:  profileSvc,
		Views:     views,
		Links:     linkSvc,
		Avatars:   avatarHandler,
		Providers: oidcHandler,
		BaseURL:   cfg.BaseURL,
	})
	pages.RegisterRoutes(r, limiter.Middleware())
	r.NoRoute(pages.NotFound)

	// must be last
	pages.RegisterProfileRoute(r)

	return r
}

// Serve runs handler on addr until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
