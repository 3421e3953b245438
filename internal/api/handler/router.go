package handler

import (
	"github.com/gin-contrib/gzip"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/pkg/errreport"
)

// NewRouter 注册所有路由；gatherer 为空时不暴露 /metrics
func NewRouter(cfg *config.Config, h *Handler, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), Logger())
	if errreport.Enabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if cfg.Server.Gzip {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	}

	r.GET("/healthz", h.Healthz)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", h.Me)
		auth.PUT("/profile", h.RequireAuth(), h.UpdateProfile)

		v1.GET("/connectivity", h.Connectivity)
		v1.PUT("/connectivity", h.SetConnectivity)
		v1.POST("/connectivity", h.SetConnectivity)
		v1.GET("/app/mode", h.Mode)
		v1.PUT("/app/mode", h.SetMode)

		sync := v1.Group("/sync")
		sync.GET("", h.SyncStatus)
		sync.POST("", h.SyncNow)
		sync.GET("/dead-letters", h.DeadLetters)
		sync.POST("/dead-letters/:entry_id/requeue", h.Requeue)

		notes := v1.Group("/notifications")
		notes.GET("", h.NotificationSettings)
		notes.PUT("", h.ToggleNotifications)
		notes.DELETE("", h.CancelNotifications)
		notes.POST("/schedule", h.ScheduleReminder)

		photos := v1.Group("/photos")
		photos.POST("", h.TakePhoto)
		photos.GET("", h.ListPhotos)
		photos.DELETE("", h.DeleteAllPhotos)
		photos.GET("/:photo_id", h.GetPhoto)
		photos.DELETE("/:photo_id", h.DeletePhoto)

		loc := v1.Group("/location")
		loc.GET("/enabled", h.LocationEnabled)
		loc.PUT("/enabled", h.SetLocationEnabled)
		loc.GET("/current", h.CurrentLocation)
		loc.POST("/current", h.PushLocation)
		loc.GET("/privacy", h.LocationPrivacy)
		loc.PUT("/privacy", h.UpdateLocationPrivacy)
		loc.GET("/nearby", h.NearbyUsers)

		authed := v1.Group("", h.RequireAuth())

		users := authed.Group("/users")
		users.GET("/search", h.SearchUsers)
		users.GET("/:user_id", h.GetUser)
		users.POST("/:user_id/follow", h.Follow)
		users.DELETE("/:user_id/follow", h.Unfollow)
		users.GET("/:user_id/following", h.ListFollowing)
		users.GET("/:user_id/followers", h.ListFollowers)

		posts := authed.Group("/posts")
		posts.POST("", h.CreatePost)
		posts.GET("", h.ListPosts)
		posts.GET("/feed", h.Feed)
		posts.GET("/:post_id", h.GetPost)
		posts.DELETE("/:post_id", h.DeletePost)
		posts.POST("/:post_id/like", h.LikePost)
		posts.DELETE("/:post_id/like", h.UnlikePost)
		posts.GET("/:post_id/comments", h.ListComments)
		posts.POST("/:post_id/comments", h.AddComment)

		convs := authed.Group("/conversations")
		convs.GET("", h.ListConversations)
		convs.POST("/direct", h.OpenDirect)
		convs.POST("/groups", h.CreateGroup)
		convs.GET("/unread", h.UnreadCount)
		convs.GET("/:conversation_id", h.GetConversation)
		convs.GET("/:conversation_id/messages", h.ListMessages)
		convs.POST("/:conversation_id/messages", h.SendMessage)
		convs.POST("/:conversation_id/read", h.MarkRead)

		stories := authed.Group("/stories")
		stories.POST("", h.CreateStory)
		stories.GET("", h.StoryFeed)
		stories.GET("/nearby", h.NearbyStories)
		stories.POST("/:story_id/view", h.ViewStory)
		stories.POST("/:story_id/like", h.LikeStory)
		stories.DELETE("/:story_id/like", h.UnlikeStory)
		stories.DELETE("/:story_id", h.DeleteStory)

		media := authed.Group("/media")
		media.POST("", h.UploadMedia)
		media.GET("/:media_id", h.GetMedia)
		media.DELETE("/:media_id", h.DeleteMedia)
	}
	return r
}
