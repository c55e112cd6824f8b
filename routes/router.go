package routes

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kvfeed/kvfeed/auth"
	"github.com/kvfeed/kvfeed/config"
	"github.com/kvfeed/kvfeed/controllers"
	"github.com/kvfeed/kvfeed/feed"
	"github.com/kvfeed/kvfeed/identity"
	"github.com/kvfeed/kvfeed/kv"
	"github.com/kvfeed/kvfeed/middleware"
	"github.com/kvfeed/kvfeed/utils"
)

// SetupRouter wires routes, middlewares, and controllers over the given
// key-value store.
func SetupRouter(cfg config.AppConfig, store kv.Store) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())

	// Access and recovery logs go to their own rolling file, apart from the
	// application log.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	// One configured frontend origin, with credentials, so the browser will
	// send the auth session cookie along. The cors middleware answers the
	// OPTIONS /posts preflight.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	registry := identity.NewRegistry(store)
	feedStore := feed.NewStore(store)
	gate := auth.NewDelegate(cfg.AuthServerURL, registry)

	postController := controllers.NewPostController(feedStore, gate)
	userController := controllers.NewUserController(registry)

	r.GET("/", func(ctx *gin.Context) {
		ctx.String(200, "Hello from kvfeed!")
	})
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	writeLimit := middleware.RateLimit(cfg.RateLimitPerMinute)

	r.GET("/posts", postController.ListPosts)
	r.POST("/posts", writeLimit, postController.CreatePost)
	r.POST("/updatelikes", writeLimit, postController.UpdateLikes)

	r.GET("/users", userController.ListUsers)
	r.POST("/users", writeLimit, userController.RegisterUser)

	return r
}
