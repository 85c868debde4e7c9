// Package httpapi wires the HTTP transport (Gin) to the car service,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, compression, metrics,
// rate limiting, CORS and security headers, and optionally hosts the
// single-page front-end from the same origin.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/car-manager/internal/config"
	"github.com/tbourn/car-manager/internal/http/handlers"
	"github.com/tbourn/car-manager/internal/http/middleware"
)

// ReadyFunc reports whether the store behind the API can serve requests.
type ReadyFunc func(ctx context.Context) error

const (
	pathHealth  = "/health"
	pathReady   = "/ready"
	pathMetrics = "/metrics"

	readyTimeout = 5 * time.Second
	maxBodyBytes = 1 << 20
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsExpose  = []string{"X-Request-ID", "Location", handlers.HeaderTotalCount, "Content-Length"}
)

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs, request-scoped logger
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. gzip
//  7. Metrics
//  8. Rate limiter (per client IP; probes exempt)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, cars handlers.CarService, ready ReadyFunc, cfg config.Config) {
	if err := handlers.RegisterValidators(); err != nil {
		panic(err)
	}
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(pathHealth, pathReady, pathMetrics))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{pathMetrics})))

	r.Use(middleware.Metrics(pathMetrics))
	r.GET(pathMetrics, gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP(), pathHealth, pathReady, pathMetrics)
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	sec := middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		APIPrefix:    apiBase,
	}
	if cfg.StaticDir != "" {
		sec.ContentSecurityPolicy = middleware.DefaultSPAPolicy
	}
	r.Use(middleware.SecurityHeaders(sec))

	// Fallbacks
	spa := spaHandler(cfg.StaticDir)
	r.NoRoute(func(c *gin.Context) {
		if spa != nil && isPageRequest(c, apiBase) {
			spa(c)
			return
		}
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness / readiness
	r.GET(pathHealth, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET(pathReady, readiness(ready))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(cars)
	api := groupWithPrefix(r, apiBase)
	{
		api.GET("/car", h.ListCars)
		api.GET("/car/:id", h.GetCar)
		api.POST("/car", h.CreateCar)
		api.PUT("/car/:id", h.UpdateCar)
		api.DELETE("/car/:id", h.DeleteCar)
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// only the allowlist.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even without an Origin header (simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     corsMethods,
				AllowHeaders:     corsHeaders,
				ExposeHeaders:    corsExpose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}
	return []gin.HandlerFunc{cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     corsMethods,
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    corsExpose,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})}
}

// readiness answers 200 when ready succeeds within readyTimeout, 503
// otherwise. A nil ReadyFunc is always ready.
func readiness(ready ReadyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("not ready")
				handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "store not ready")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// spaHandler serves files from dir, falling back to dir/index.html so
// client-side routes resolve. Returns nil when dir is empty.
func spaHandler(dir string) gin.HandlerFunc {
	if dir == "" {
		return nil
	}
	fs := gin.Dir(dir, false)
	files := http.FileServer(fs)
	index := filepath.Join(dir, "index.html")

	return func(c *gin.Context) {
		p := path.Clean("/" + c.Request.URL.Path)
		if f, err := fs.Open(p); err == nil {
			st, serr := f.Stat()
			_ = f.Close()
			if serr == nil && !st.IsDir() {
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		if _, err := os.Stat(index); err != nil {
			handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
			return
		}
		c.File(index)
	}
}

// isPageRequest reports whether an unmatched request should get the
// front-end: a GET or HEAD outside the API prefix.
func isPageRequest(c *gin.Context, apiBase string) bool {
	m := c.Request.Method
	if m != http.MethodGet && m != http.MethodHead {
		return false
	}
	p := c.Request.URL.Path
	if apiBase == "" || apiBase == "/" {
		// API at root: only serve files that look like assets or pages.
		return !strings.HasPrefix(p, "/car")
	}
	return p != apiBase && !strings.HasPrefix(p, apiBase+"/")
}

// limitBody caps request bodies at maxBytes; larger bodies fail to read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
