package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/domain"
)

const (
	sessionName = "ChatSessions"
	keyClientID = "client_id"
	keyNickname = "nick"
)

// ClientIDMiddleware gives every browser a stable id kept in the session cookie. Flood control
// and reconnect nicknames are keyed on it.
func ClientIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, _ := s.Get(keyClientID).(string)
		if id == "" {
			id = uuid.NewString()
			s.Set(keyClientID, id)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(keyClientID, id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *orch.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(rooms.List())})
	})

	if st, err := os.Stat(cfg.StaticPath); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticPath, "index.html"))
		})
		log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("serving static files")
	}

	ctrl := signal.NewSignalWSController(rooms, cfg)
	roomID := domain.RoomID(cfg.Room)

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		client := c.GetString(keyClientID)
		nick := rememberNick(c)
		log.Info().Str("module", "adapters.http").Str("client", client).Str("nick", nick).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c, nick, client)
	})

	api.GET("/room", func(c *gin.Context) {
		info, err := rooms.GetOrCreate(roomID).Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	return r
}

// rememberNick returns the nickname asked for in the query, falling back to the one stored
// in the session by an earlier visit.
func rememberNick(c *gin.Context) string {
	s := sessions.Default(c)
	nick := c.Query(keyNickname)
	if nick == "" {
		nick, _ = s.Get(keyNickname).(string)
		return nick
	}
	s.Set(keyNickname, nick)
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	return nick
}
