package http

import (
	"context"
	"net/http"

	"github.com/dkeye/meshcall/internal/adapters/signal"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionName    = "MeshcallSessions"
	profileNameKey = "name"
)

type profileRequest struct {
	Name string `json:"name" binding:"required,max=36"`
}

type profileResponse struct {
	Name string `json:"name"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		SendBuffer:   cfg.SendBuffer,
		JoinLimit:    cfg.JoinRateLimit,
		JoinInterval: cfg.JoinRateInterval,
	})

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote_addr", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c, profileName(c))
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})

	api.GET("/rooms/:name/peers", func(c *gin.Context) {
		name, ok := domain.NormalizeRoom(c.Param("name"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_room"})
			return
		}
		room, ok := o.Rooms.Get(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		members := room.MembersSnapshot("")
		ids := make([]domain.SessionID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		c.JSON(http.StatusOK, ids)
	})

	api.GET("/profile", func(c *gin.Context) {
		c.JSON(http.StatusOK, profileResponse{Name: profileName(c)})
	})

	api.POST("/profile", func(c *gin.Context) {
		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
			return
		}
		u, err := domain.NewUser("", req.Name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
			return
		}
		s := sessions.Default(c)
		s.Set(profileNameKey, u.Username)
		if err := s.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
			return
		}
		c.JSON(http.StatusOK, profileResponse{Name: u.Username})
	})

	return r
}

func profileName(c *gin.Context) string {
	name, _ := sessions.Default(c).Get(profileNameKey).(string)
	return name
}
