package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatelog/internal/auth"
	"gatelog/internal/cloudinary"
	"gatelog/internal/config"
	"gatelog/internal/forecast"
	"gatelog/internal/httpmiddleware"
	"gatelog/internal/metrics"
	"gatelog/internal/queue"
	"gatelog/internal/scan"
	"gatelog/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// Set Gin mode based on environment
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
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "gatelog:scans")
	}

	repo := scan.NewRepository(db.Client)
	resolver := scan.NewService(repo)

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

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

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := repo.UserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(user.ID, user.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = repo.SaveRefreshToken(c.Request.Context(), user.ID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/v1/auth/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.Parse(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		owner, err := repo.RefreshTokenUser(c.Request.Context(), req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if owner == "" || owner != claims.UserID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		tokens, err := auth.Issue(claims.UserID, claims.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = repo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken)
		_ = repo.SaveRefreshToken(c.Request.Context(), claims.UserID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.OperatorAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/scan", func(c *gin.Context) {
		var req struct {
			Code   string `json:"code" binding:"required"`
			Action string `json:"action" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claimsAny, _ := c.Get("claims")
		claims, _ := claimsAny.(auth.Claims)

		result, err := resolver.Scan(c.Request.Context(), req.Code, req.Action, claims.UserID)
		if err != nil {
			outcome := scan.KindOf(err)
			if outcome == "" {
				outcome = "error"
			}
			metrics.ScansTotal.WithLabelValues(req.Action, "unknown", outcome).Inc()
			c.JSON(scan.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		metrics.ScansTotal.WithLabelValues(result.Event, string(result.SubjectType), "ok").Inc()

		evt := scan.Event{
			LogID:       result.LogID,
			Event:       result.Event,
			SubjectType: string(result.SubjectType),
			SubjectID:   result.Subject.ID,
			Date:        result.Timestamp.Format(forecast.DateLayout),
			AlertCount:  len(result.Alerts),
		}
		if body, err := json.Marshal(evt); err == nil {
			if err := q.Publish(c.Request.Context(), queue.Message{Type: "scan", Body: body}); err != nil {
				metrics.QueuePublishFailures.Inc()
				log.Printf("queue publish failed: %v", err)
			}
		}

		c.JSON(http.StatusOK, result)
	})

	authGroup.GET("/logs", func(c *gin.Context) {
		subjectType := scan.SubjectType(c.Query("subject_type"))
		openOnly := c.Query("open") == "true"
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		entries, err := repo.ListEntries(c.Request.Context(), subjectType, openOnly, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": entries})
	})

	authGroup.GET("/forecast", handleForecast(repo))

	authGroup.GET("/stats/today", func(c *gin.Context) {
		today := time.Now().UTC().Format(forecast.DateLayout)
		visitors, err := redisClient.DailyTally(c.Request.Context(), string(scan.SubjectVisitor), today)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		personnel, err := redisClient.DailyTally(c.Request.Context(), string(scan.SubjectPersonnel), today)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": today, "visitors": visitors, "personnel": personnel})
	})

	authGroup.POST("/visitors", func(c *gin.Context) {
		var req struct {
			FirstName  string  `json:"first_name" binding:"required"`
			MiddleName string  `json:"middle_name"`
			LastName   string  `json:"last_name" binding:"required"`
			Contact    *string `json:"contact"`
			Address    *string `json:"address"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := repo.InsertVisitor(c.Request.Context(), scan.Visitor{
			FirstName:  req.FirstName,
			MiddleName: req.MiddleName,
			LastName:   req.LastName,
			Contact:    req.Contact,
			Address:    req.Address,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, v)
	})

	authGroup.POST("/personnel", func(c *gin.Context) {
		var req struct {
			FullName string  `json:"full_name" binding:"required"`
			Position *string `json:"position"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := repo.InsertPersonnel(c.Request.Context(), scan.Personnel{
			FullName: strings.ToUpper(strings.TrimSpace(req.FullName)),
			Position: req.Position,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, p)
	})

	authGroup.POST("/visitors/:id/violations", auth.RequireRole("admin"), func(c *gin.Context) {
		var req struct {
			Details string `json:"details" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		visitorID := c.Param("id")
		v, err := repo.VisitorByID(c.Request.Context(), visitorID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if v == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "visitor not found"})
			return
		}
		violation, err := repo.InsertViolation(c.Request.Context(), scan.Violation{VisitorID: visitorID, Details: req.Details})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, violation)
	})

	// Pass photo upload — multipart file or JSON base64 data URL.
	authGroup.POST("/visitors/:id/photo", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage not configured"})
			return
		}
		visitorID := c.Param("id")
		v, err := repo.VisitorByID(c.Request.Context(), visitorID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if v == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "visitor not found"})
			return
		}

		var result *cloudinary.UploadResult
		switch {
		case strings.Contains(c.ContentType(), "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = cdnClient.UploadBytes(data, header.Filename)
		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = cdnClient.UploadBase64(body.Data)
		}
		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
			return
		}

		if err := repo.SetVisitorPhoto(c.Request.Context(), visitorID, result.SecureURL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "public_id": result.PublicID})
	})

	// Graceful shutdown
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

// handleForecast aggregates daily check-in counts, zero-fills them and
// runs the forecaster. Sparse history never errors; undefined values
// serialize as null.
func handleForecast(repo *scan.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := intQuery(c, "days", 30)
		if days < 7 {
			days = 7
		}
		if days > 365 {
			days = 365
		}

		opts := forecast.Options{
			Window: intQuery(c, "window", forecast.DefaultWindow),
			Algo:   c.DefaultQuery("algo", forecast.AlgoMovingAverage),
			Season: intQuery(c, "seasonLen", forecast.DefaultSeason),
			Alpha:  floatQuery(c, "alpha", forecast.DefaultAlpha),
			Beta:   floatQuery(c, "beta", forecast.DefaultBeta),
			Gamma:  floatQuery(c, "gamma", forecast.DefaultGamma),
		}

		today := time.Now().UTC()
		since := today.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

		counts, err := repo.DailyCheckinCounts(c.Request.Context(), scan.SubjectVisitor, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		series := forecast.BuildSeries(counts, days, today)

		timer := prometheus.NewTimer(metrics.ForecastDuration)
		result := forecast.Run(series, opts)
		timer.ObserveDuration()

		resp := gin.H{
			"window":          result.Window,
			"algo":            result.Algo,
			"days":            days,
			"series":          series,
			"smoothed":        nullableSlice(result.Smoothed),
			"nextDayForecast": nullable(result.Forecast),
			"metrics":         metricsJSON(result),
			"confidence":      result.Confidence,
			"explanation":     result.Explanation,
			"fallbackUsed":    result.FallbackUsed,
		}

		// Personnel mirror is always a moving average, independent of algo.
		if c.Query("includePersonnel") == "true" {
			pCounts, err := repo.DailyCheckinCounts(c.Request.Context(), scan.SubjectPersonnel, since)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			pSeries := forecast.BuildSeries(pCounts, days, today)
			pResult := forecast.Run(pSeries, forecast.Options{Window: opts.Window, Algo: forecast.AlgoMovingAverage})
			resp["personnel"] = gin.H{
				"series":          pSeries,
				"smoothed":        nullableSlice(pResult.Smoothed),
				"nextDayForecast": nullable(pResult.Forecast),
				"metrics":         metricsJSON(pResult),
				"confidence":      pResult.Confidence,
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

func metricsJSON(r forecast.Result) gin.H {
	m := gin.H{
		"mae":  nullable(r.MAE),
		"rmse": nullable(r.RMSE),
		"mape": nullable(r.MAPE),
	}
	if r.HasInterval {
		m["lower"] = r.Lower
		m["upper"] = r.Upper
	}
	return m
}

// nullable maps NaN sentinels to JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func nullableSlice(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i := range vs {
		out[i] = nullable(vs[i])
	}
	return out
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatQuery(c *gin.Context, key string, fallback float64) float64 {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
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
