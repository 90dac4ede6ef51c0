package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialgw/internal/services/auth"
	"socialgw/internal/services/identity"
)

type stubIdentityService struct {
	identities map[string]*identity.Identity
}

func (s *stubIdentityService) FindIdentity(_ context.Context, id string) (*identity.Identity, error) {
	if ident, ok := s.identities[id]; ok {
		return ident, nil
	}
	return nil, identity.ErrNotFound
}

type gatewayFixture struct {
	hub     *Hub
	limiter *Limiter
	emitter *Emitter
	authSvc auth.IAuthService
	url     string
}

func newGatewayFixture(t *testing.T, opts Options) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	limiter := NewLimiter(LimitTable{Default: Limit{Max: 100, Window: time.Minute}})
	authSvc := auth.NewAuthService("test-secret-key", "socialgw-test")
	idSvc := &stubIdentityService{identities: map[string]*identity.Identity{
		"u1": {ID: "u1", Username: "alice"},
		"u2": {ID: "u2", Username: "bob"},
	}}
	srv := NewWsServer(hub, limiter, authSvc, idSvc, opts)

	engine := gin.New()
	engine.GET("/ws", srv.Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)

	return &gatewayFixture{
		hub:     hub,
		limiter: limiter,
		emitter: NewEmitter(hub),
		authSvc: authSvc,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func defaultOptions() Options {
	return Options{
		MaxFrameBytes:  4096,
		SendBufferSize: 16,
		PongWait:       5 * time.Second,
		PingPeriod:     2 * time.Second,
	}
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWsEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func writeWsEnvelope(t *testing.T, conn *websocket.Conn, event string, body any) {
	t.Helper()
	env := Envelope{Event: event}
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		env.Body = raw
	}
	require.NoError(t, conn.WriteJSON(env))
}

func readHello(t *testing.T, conn *websocket.Conn) HelloBody {
	t.Helper()
	env := readWsEnvelope(t, conn)
	require.Equal(t, EventHello, env.Event)
	var hello HelloBody
	require.NoError(t, json.Unmarshal(env.Body, &hello))
	return hello
}

// assertNoWsFrame burns the connection's read deadline; use it last.
func assertNoWsFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestAnonymousHandshakeAndPostsFeed(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	subscriber := dial(t, fx.url, nil)
	hello := readHello(t, subscriber)
	assert.NotEmpty(t, hello.ConnectionID)
	assert.Empty(t, hello.UserID)

	bystander := dial(t, fx.url, nil)
	readHello(t, bystander)

	writeWsEnvelope(t, subscriber, KindSubscribePosts, nil)
	require.Equal(t, "subscribe:posts-ack", readWsEnvelope(t, subscriber).Event)

	require.NoError(t, fx.emitter.Publish(RoomPosts, EventCommentNew, map[string]string{"id": "c1"}))

	env := readWsEnvelope(t, subscriber)
	assert.Equal(t, EventCommentNew, env.Event)
	assert.JSONEq(t, `{"id":"c1"}`, string(env.Body))

	assertNoWsFrame(t, bystander)
}

func TestAuthenticatedHandshakeAutoJoinsPrivateRoom(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	token, err := fx.authSvc.IssueToken("u1", time.Minute)
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn := dial(t, fx.url, header)

	hello := readHello(t, conn)
	assert.Equal(t, "u1", hello.UserID)
	assert.Equal(t, "alice", hello.Username)

	require.NoError(t, fx.emitter.Publish("user:u1", EventNotificationNew, map[string]string{"kind": "mention"}))

	env := readWsEnvelope(t, conn)
	assert.Equal(t, EventNotificationNew, env.Event)
	assert.Equal(t, []string{"u1"}, fx.hub.OnlineUsers())
}

func TestExpiredTokenDegradesToAnonymous(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	token, err := fx.authSvc.IssueToken("u1", -time.Minute)
	require.NoError(t, err)

	conn := dial(t, fx.url+"?token="+token, nil)

	hello := readHello(t, conn)
	assert.Empty(t, hello.UserID)
	assert.Empty(t, fx.hub.OnlineUsers())

	// public features stay usable
	writeWsEnvelope(t, conn, KindSubscribePosts, nil)
	assert.Equal(t, "subscribe:posts-ack", readWsEnvelope(t, conn).Event)
}

func TestGarbageTokenDegradesToAnonymous(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	conn := dial(t, fx.url+"?token=not-a-jwt", nil)

	hello := readHello(t, conn)
	assert.Empty(t, hello.UserID)
}

func TestUnknownIdentityIsRejected(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	token, err := fx.authSvc.IssueToken("ghost", time.Minute)
	require.NoError(t, err)

	conn := dial(t, fx.url+"?token="+token, nil)

	env := readWsEnvelope(t, conn)
	require.Equal(t, EventError, env.Event)
	assert.JSONEq(t, `{"error":"unknown_identity"}`, string(env.Body))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestAnonymousCannotJoinAnotherUsersRoom(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	token, err := fx.authSvc.IssueToken("u1", time.Minute)
	require.NoError(t, err)
	owner := dial(t, fx.url+"?token="+token, nil)
	require.Equal(t, "u1", readHello(t, owner).UserID)

	intruder := dial(t, fx.url, nil)
	readHello(t, intruder)

	writeWsEnvelope(t, intruder, KindJoinUser, UserBody{UserID: "u1"})

	env := readWsEnvelope(t, intruder)
	require.Equal(t, EventError, env.Event)
	assert.JSONEq(t, `{"error":"unauthorized_room_join"}`, string(env.Body))

	// the private room still holds only its owner
	assert.Equal(t, 1, roomSize(fx.hub, "user:u1"))

	// and the intruder's connection remains alive and unjoined
	writeWsEnvelope(t, intruder, KindSubscribePosts, nil)
	assert.Equal(t, "subscribe:posts-ack", readWsEnvelope(t, intruder).Event)
}

func TestDisconnectPurgesAllState(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	conn := dial(t, fx.url, nil)
	hello := readHello(t, conn)

	writeWsEnvelope(t, conn, KindSubscribePosts, nil)
	require.Equal(t, "subscribe:posts-ack", readWsEnvelope(t, conn).Event)
	require.True(t, fx.limiter.tracked(hello.ConnectionID))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return roomCount(fx.hub) == 0 && !fx.limiter.tracked(hello.ConnectionID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOversizedFrameDisconnects(t *testing.T) {
	opts := defaultOptions()
	opts.MaxFrameBytes = 256
	fx := newGatewayFixture(t, opts)

	conn := dial(t, fx.url, nil)
	readHello(t, conn)

	writeWsEnvelope(t, conn, KindSubscribePosts, nil)
	require.Equal(t, "subscribe:posts-ack", readWsEnvelope(t, conn).Event)

	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, big))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return roomCount(fx.hub) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedFrameGetsErrorButStaysConnected(t *testing.T) {
	fx := newGatewayFixture(t, defaultOptions())

	conn := dial(t, fx.url, nil)
	readHello(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env := readWsEnvelope(t, conn)
	require.Equal(t, EventError, env.Event)
	assert.JSONEq(t, `{"error":"malformed_frame"}`, string(env.Body))

	writeWsEnvelope(t, conn, KindSubscribePosts, nil)
	assert.Equal(t, "subscribe:posts-ack", readWsEnvelope(t, conn).Event)
}
