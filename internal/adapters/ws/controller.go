package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/beamchat/relay/internal/app"
	"github.com/beamchat/relay/internal/auth"
	"github.com/beamchat/relay/internal/config"
	"github.com/beamchat/relay/internal/core"
	"github.com/beamchat/relay/internal/domain"
)

const writeWait = 5 * time.Second

// Controller owns the websocket endpoint: handshake verification, the
// upgrade, and the read/write pumps of every admitted connection.
type Controller struct {
	Router   *app.Router
	Verifier *auth.Verifier

	cfg      *config.Config
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewController(rt *app.Router, verifier *auth.Verifier, cfg *config.Config) *Controller {
	ctl := &Controller{
		Router:   rt,
		Verifier: verifier,
		cfg:      cfg,
		validate: validator.New(),
	}
	ctl.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser callers (tooling, tests) send no Origin.
				return true
			}
			return origin == cfg.AllowedOrigin
		},
	}
	return ctl
}

// HandleChat is the one-time handshake. The credential is verified before
// the upgrade: a rejected handshake answers with plain HTTP and never
// touches the registry or the membership table.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	identity, err := ctl.Verifier.Verify(bearerToken(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("handshake rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	sock, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	conn := newConn(sock, ctl.cfg.SendQueue)
	connCtx, cancel := context.WithCancel(ctx)
	cid := ctl.Router.Registry.Admit(core.NewMemberSession(identity, conn), cancel)
	log.Info().Str("module", "ws").Str("cid", string(cid)).Str("user", string(identity.UserID)).Msg("new connection")

	go ctl.writePump(connCtx, cid, conn)
	go ctl.readPump(connCtx, cid, conn)
}

// bearerToken pulls the credential from the auth query parameter or, for
// non-browser clients, the Authorization header.
func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	const prefix = "Bearer "
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

func (ctl *Controller) writePump(ctx context.Context, cid domain.ConnID, c *Conn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		// Closing the socket here unblocks the read pump, which runs the
		// disconnect cleanup.
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.out.Wake():
			for {
				f, ok := c.out.Pop()
				if !ok {
					break
				}
				_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.sock.WriteMessage(websocket.TextMessage, f); err != nil {
					log.Debug().Err(err).Str("module", "ws").Str("cid", string(cid)).Msg("write error")
					return
				}
			}
			if c.out.Closed() {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cid domain.ConnID, c *Conn) {
	defer func() {
		ctl.Router.OnDisconnect(cid)
		c.Close()
		log.Info().Str("module", "ws").Str("cid", string(cid)).Msg("connection closed")
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	c.sock.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	strikes := newStrikeLimiter(ctl.cfg.MalformedBurst)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.sock.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("cid", string(cid)).Msg("read error")
				return
			}
			if !ctl.dispatch(cid, data) && !strikes.Allow() {
				log.Warn().Str("module", "ws").Str("cid", string(cid)).Msg("too many malformed events, closing")
				return
			}
		}
	}
}
