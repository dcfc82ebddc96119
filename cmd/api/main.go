package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"uniportal/internal/auth"
	"uniportal/internal/config"
	"uniportal/internal/httpmiddleware"
	"uniportal/internal/hub"
	"uniportal/internal/notify"
	"uniportal/internal/qr"
	"uniportal/internal/schedule"
	"uniportal/internal/session"
	"uniportal/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg config.App, logger *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	sessions := session.NewRedisStore(redisClient.Client)
	users := auth.NewRepository(db.Client)
	authSvc := auth.NewService(users, sessions, logger.Named("auth"))

	schedules := schedule.NewRepository(db.Client)
	qrSvc := qr.NewService(qr.NewPGStore(db.Client), cfg.BaseURL, cfg.QRExpiry, logger.Named("qr"))

	broker := hub.New(cfg.HubBuffer, logger.Named("hub"))

	// The change listener runs for the process lifetime; cancelling listenCtx
	// on shutdown stops it within one poll interval.
	listenCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	listener := notify.NewListener(
		notify.PGConnector(cfg.DatabaseURL),
		broker,
		cfg.ListenPoll,
		cfg.ListenBackoff,
		logger.Named("listener"),
	)
	go listener.Run(listenCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/api/auth/login", func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess, err := authSvc.Login(c.Request.Context(), req.Name, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrBadLogin) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sess.ID,
			"role":       sess.Role,
			"name":       sess.Name,
		})
	})

	r.POST("/api/auth/logout", func(c *gin.Context) {
		id := c.GetHeader(auth.HeaderSessionID)
		if id != "" {
			if err := authSvc.Logout(c.Request.Context(), id); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})

	r.GET("/ws", hub.Handler(broker, sessions, logger.Named("ws")))

	api := r.Group("/api", auth.SessionAuth(sessions, logger.Named("gate")))

	api.POST("/qr/generate", auth.RequireRole(session.RoleTeacher), func(c *gin.Context) {
		var req struct {
			Subject string `json:"subject" binding:"required"`
			Date    string `json:"date" binding:"required"`
			Time    string `json:"time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, _ := auth.PrincipalFrom(c)
		issued, err := qrSvc.Issue(c.Request.Context(), req.Subject, req.Date, req.Time, p.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr generation failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"qr_url": issued.URL})
	})

	api.POST("/qr/scan", auth.RequireRole(session.RoleStudent), func(c *gin.Context) {
		var req struct {
			QRID  string `json:"qr_id" binding:"required"`
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, _ := auth.PrincipalFrom(c)
		u, err := users.FindByID(c.Request.Context(), p.UserID)
		if err != nil || u == nil || u.StudentID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "no student record"})
			return
		}
		res, err := qrSvc.Check(c.Request.Context(), req.QRID, req.Token, u.StudentID)
		if err != nil {
			// Transaction conflict: everything rolled back, client may retry.
			c.JSON(http.StatusConflict, gin.H{"error": "try again"})
			return
		}
		status := http.StatusOK
		if !res.Valid {
			status = http.StatusBadRequest
		}
		c.JSON(status, res)
	})

	api.GET("/timetable/student", auth.RequireRole(session.RoleStudent), func(c *gin.Context) {
		date := c.Query("date")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		p, _ := auth.PrincipalFrom(c)
		u, err := users.FindByID(c.Request.Context(), p.UserID)
		if err != nil || u == nil || u.StudentID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "no student record"})
			return
		}
		entries, err := schedules.FindByStudentAndDate(c.Request.Context(), u.StudentID, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "timetable lookup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "lessons": entries})
	})

	api.GET("/timetable/teacher", auth.RequireRole(session.RoleTeacher), func(c *gin.Context) {
		date := c.Query("date")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		p, _ := auth.PrincipalFrom(c)
		entries, err := schedules.FindByTeacherAndDate(c.Request.Context(), p.Name, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "timetable lookup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "lessons": entries})
	})

	api.POST("/attendance/turnout", auth.RequireRole(session.RoleTeacher), func(c *gin.Context) {
		var req struct {
			EntryID int64 `json:"entry_id" binding:"required"`
			Turnout *bool `json:"turnout" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := schedules.SetTurnout(c.Request.Context(), req.EntryID, *req.Turnout); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "turnout update failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry_id": req.EntryID, "turnout": *req.Turnout})
	})

	api.POST("/attendance/comment", auth.RequireRole(session.RoleTeacher), func(c *gin.Context) {
		var req struct {
			EntryID int64  `json:"entry_id" binding:"required"`
			Comment string `json:"comment"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := schedules.SetComment(c.Request.Context(), req.EntryID, req.Comment); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "comment update failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry_id": req.EntryID})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	stopListener()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Session-Id")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
