package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendanceguard/internal/attendance"
	"attendanceguard/internal/auth"
	"attendanceguard/internal/config"
	"attendanceguard/internal/device"
	"attendanceguard/internal/engagement"
	"attendanceguard/internal/geo"
	"attendanceguard/internal/httpmiddleware"
	"attendanceguard/internal/queue"
	"attendanceguard/internal/reputation"
	"attendanceguard/internal/store"
	"attendanceguard/internal/token"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			return err
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendanceguard:finalize")
	}

	mint := token.New(cfg.QRSecret, cfg.QRRotationInterval)
	oracle := reputation.New(cfg.ReputationURL, cfg.ReputationTimeout, cfg.ReputationSkip)

	repo := attendance.NewRepository(db.Client)
	ledger := attendance.NewService(repo, repo, mint, oracle, cfg.ReputationTimeout)
	ledger.BlockSuspiciousDevice = cfg.BlockSuspiciousDevice

	onlineRepo := engagement.NewRepository(db.Client)
	online := engagement.NewService(onlineRepo, repo, repo)

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
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Dev convenience: mint an access token for a known subject. A real
	// deployment fronts this with its identity provider.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			Subject string `json:"subject" binding:"required"`
			Role    string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Role != auth.RoleStudent && req.Role != auth.RoleFaculty {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student or faculty"})
			return
		}
		tok, exp, err := auth.Issue(req.Subject, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"access_token": tok, "expires_at": exp.Unix()})
	})

	authGroup := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Rotating QR token for the session display. Faculty only; students
	// obtain tokens by scanning the display or via the nearby endpoint.
	authGroup.GET("/sessions/:id/qr", auth.RequireRole(auth.RoleFaculty), func(c *gin.Context) {
		tok, err := mint.Generate(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token mint failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":       tok,
			"interval_ms": mint.Interval().Milliseconds(),
		})
	})

	authGroup.POST("/attendance", func(c *gin.Context) {
		var req attendance.MarkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		studentID := auth.FromContext(c).Subject
		identity := device.IdentityFromRequest(c.Request, c.ClientIP())

		res, err := ledger.Mark(c.Request.Context(), studentID, req, identity)
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"record_id":             res.Record.ID,
			"status":                res.Record.Status,
			"marked_at":             res.Record.MarkedAt,
			"location_verification": res.Verification,
		})
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		records, err := ledger.History(c.Request.Context(), auth.FromContext(c).Subject, c.Query("class_id"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": records})
	})

	authGroup.POST("/attendance/nearby", func(c *gin.Context) {
		var req struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := ledger.Nearby(c.Request.Context(), auth.FromContext(c).Subject,
			geo.Point{Latitude: req.Latitude, Longitude: req.Longitude})
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		if res == nil {
			c.JSON(http.StatusOK, gin.H{"session": nil, "message": "no active sessions nearby"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": res})
	})

	authGroup.POST("/online", auth.RequireRole(auth.RoleFaculty), func(c *gin.Context) {
		var req struct {
			SessionID   string `json:"session_id" binding:"required"`
			Platform    string `json:"platform" binding:"required"`
			MeetingLink string `json:"meeting_link"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess, err := online.Create(c.Request.Context(), req.SessionID, engagement.Platform(req.Platform), req.MeetingLink)
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"online_session": sess})
	})

	authGroup.POST("/online/:id/start", auth.RequireRole(auth.RoleFaculty), func(c *gin.Context) {
		sess, err := online.Start(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"online_session": sess})
	})

	authGroup.POST("/online/:id/join", func(c *gin.Context) {
		p, err := online.Join(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject)
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"participant": p})
	})

	authGroup.POST("/online/:id/leave", func(c *gin.Context) {
		minutes, err := online.Leave(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject)
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"duration_minutes": minutes})
	})

	authGroup.PUT("/online/:id/engagement", func(c *gin.Context) {
		var upd engagement.Update
		if err := c.ShouldBindJSON(&upd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		score, err := online.UpdateEngagement(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, upd)
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"engagement_score": score})
	})

	authGroup.POST("/online/:id/end", auth.RequireRole(auth.RoleFaculty), func(c *gin.Context) {
		sess, err := online.End(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeFinalize, Body: []byte(sess.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"online_session": sess})
	})

	authGroup.GET("/online/:id", func(c *gin.Context) {
		sess, participants, err := online.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeEngagementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"online_session": sess, "participants": participants})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// writeLedgerError maps ledger rejection kinds to HTTP statuses. Each kind is
// distinguishable so clients can render a specific remediation message.
func writeLedgerError(c *gin.Context, err error) {
	le, ok := attendance.AsError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusBadRequest
	switch le.Kind {
	case attendance.KindNotEnrolled, attendance.KindLocationOutOfRange,
		attendance.KindLocationSpoofed, attendance.KindDeviceSuspicious:
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": le})
}

func writeEngagementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engagement.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engagement.ErrNotLive),
		errors.Is(err, engagement.ErrNotJoined),
		errors.Is(err, engagement.ErrNotEnded),
		errors.Is(err, engagement.ErrUnknownPlatform),
		errors.Is(err, engagement.ErrSessionExists),
		errors.Is(err, engagement.ErrAlreadyJoined):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
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
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
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
