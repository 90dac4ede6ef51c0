package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"socialgw/internal/services/auth"
	"socialgw/internal/services/identity"
)

const identityLookupTimeout = 4 * time.Second

// Options carries the per-connection limits of the gateway.
type Options struct {
	MaxFrameBytes  int64
	SendBufferSize int
	PongWait       time.Duration
	PingPeriod     time.Duration // must be < PongWait
}

type WsServer struct {
	hub        *Hub
	limiter    *Limiter
	router     *Router
	authSvc    auth.IAuthService
	identities identity.IIdentityService
	upgrader   websocket.Upgrader
	opts       Options
}

func NewWsServer(h *Hub, limiter *Limiter, authSvc auth.IAuthService, identities identity.IIdentityService, opts Options) *WsServer {
	return &WsServer{
		hub:        h,
		limiter:    limiter,
		router:     NewRouter(h, limiter),
		authSvc:    authSvc,
		identities: identities,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true }, // dev-only
		},
		opts: opts,
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle performs the handshake: upgrade, opportunistic identity
// resolution, auto-join of the private room, then reader + write pump.
// A bad or expired credential degrades to an anonymous connection; only a
// valid credential with no matching identity record is terminal.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	token := bearerToken(ginCtx.Request)

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws_accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.MaxFrameBytes)

	c := newConn(uuid.NewString(), rawConn, s.opts.SendBufferSize)

	// The lookup round-trip runs on this connection's goroutine only;
	// every other connection keeps dispatching while it is in flight.
	if token != "" {
		if !s.resolveIdentity(ginCtx.Request.Context(), c, token) {
			return // rejected, never became usable
		}
	}

	go c.writePump(s.opts.PingPeriod)

	if ident := c.Identity(); ident != nil {
		// the user's private room is joined for them at handshake
		if err := s.hub.Join(c, RoomUserPrefix+ident.ID); err != nil {
			zap.L().Error("ws_autojoin", zap.String("conn_id", c.ID()), zap.Error(err))
		}
	}

	_ = c.sendJSON(EventHello, s.helloBody(c))

	go s.reader(c)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

// resolveIdentity reports whether the connection may proceed.
func (s *WsServer) resolveIdentity(ctx context.Context, c *Conn, token string) bool {
	claims, err := s.authSvc.VerifyCredential(token)
	if err != nil {
		// stale or forged token: public features stay usable
		zap.L().Info("auth_failed", zap.String("conn_id", c.ID()), zap.Error(err))
		return true
	}

	lookupCtx, cancel := context.WithTimeout(ctx, identityLookupTimeout)
	defer cancel()

	ident, err := s.identities.FindIdentity(lookupCtx, claims.Subject)
	switch {
	case err == nil:
		c.setIdentity(ident)
		return true
	case errors.Is(err, identity.ErrNotFound):
		zap.L().Warn("unknown_identity",
			zap.String("conn_id", c.ID()),
			zap.String("subject", claims.Subject),
		)
		s.reject(c, "unknown_identity")
		return false
	default:
		// identity store trouble, not the client's fault: degrade
		zap.L().Error("identity_lookup", zap.String("conn_id", c.ID()), zap.Error(err))
		return true
	}
}

// reject runs before the write pump starts, so it may write directly.
func (s *WsServer) reject(c *Conn, reason string) {
	if msg, err := encodeEnvelope(EventError, ErrorBody{Error: reason}); err == nil {
		_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.rawConn.WriteMessage(websocket.TextMessage, msg)
	}
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.rawConn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	_ = c.rawConn.Close()
}

func (s *WsServer) helloBody(c *Conn) HelloBody {
	hello := HelloBody{ConnectionID: c.ID()}
	if ident := c.Identity(); ident != nil {
		hello.UserID = ident.ID
		hello.Username = ident.Username
	}
	return hello
}

// reader consumes one inbound frame at a time. A read error of any kind -
// client close, missed heartbeats, an oversized frame - ends the
// connection.
func (s *WsServer) reader(c *Conn) {
	defer s.disconnect(c)

	_ = c.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.rawConn.SetPongHandler(func(string) error {
		return c.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := c.rawConn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = c.sendJSON(EventError, ErrorBody{Error: "malformed_frame"})
			continue
		}
		s.router.Dispatch(c, env)
	}
}

// disconnect is the single cleanup step: room memberships and rate-limit
// counters go away together, synchronously, leaving no residue.
func (s *WsServer) disconnect(c *Conn) {
	s.hub.RemoveAll(c)
	s.limiter.Purge(c.ID())
	c.shutdown()
	zap.L().Debug("ws_disconnect",
		zap.String("conn_id", c.ID()),
		zap.Duration("uptime", time.Since(c.createdAt)),
	)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// browser websocket clients cannot set headers
	return r.URL.Query().Get("token")
}
