// Command procmgrd boots the process supervision runtime: it restores the
// last exported inventory, auto-starts anything flagged to do so, serves
// a minimal health/status HTTP surface, and runs until SIGINT/SIGTERM
// triggers the shutdown sequence. The MCP tool dispatch surface that
// calls Processes() is outside this engine's scope (spec.md §1) and is
// wired up by whatever process embeds this runtime.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/procmgr-mcp/internal/config"
	"github.com/edirooss/procmgr-mcp/internal/procmgr"
	"github.com/edirooss/procmgr-mcp/internal/snapshot"
	"github.com/edirooss/procmgr-mcp/internal/snapshot/redisstore"
	"github.com/edirooss/procmgr-mcp/internal/snapshot/yamlstore"
	"github.com/edirooss/procmgr-mcp/internal/supervisor"
)

// zapRequestLogger mirrors the teacher's ZapLogger Gin middleware
// (cmd/zmux-server/main.go), unchanged in shape since this surface needs
// the same request/status/latency logging the teacher's dashboard API
// does.
func zapRequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// newSnapshotStores builds the import and export store handles. With the
// Redis backend both are the same client (it has one configured key and
// ignores the file paths); with the YAML backend they are separate stores
// on cfg.ImportFile and cfg.ExportFile, since spec.md §6 documents the two
// paths as independently settable.
func newSnapshotStores(cfg *config.Config, log *zap.Logger) (importStore, exportStore snapshot.Store) {
	if cfg.RedisAddr != "" {
		client := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, log)
		return client, client
	}
	return yamlstore.New(cfg.ImportFile), yamlstore.New(cfg.ExportFile)
}

func newRouter(log *zap.Logger, proc *procmgr.Supervisor) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	r.Use(zapRequestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/api/processes", func(c *gin.Context) {
		c.JSON(http.StatusOK, proc.List(procmgr.ListFilter{}))
	})

	r.GET("/api/processes/counts", func(c *gin.Context) {
		c.JSON(http.StatusOK, proc.CountByState())
	})

	return r
}

func main() {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.TimeKey = "ts"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("procmgrd")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	importStore, exportStore := newSnapshotStores(cfg, log)

	rt := supervisor.New(log, cfg, importStore, exportStore)

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Boot(bootCtx); err != nil {
		log.Fatal("boot failed", zap.Error(err))
	}

	router := newRouter(log, rt.Processes())
	httpServer := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}

	go func() {
		log.Info("running HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	if err := rt.Run(context.Background()); err != nil {
		log.Error("shutdown sequence failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
}
