package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/policies"
	"gigsocket/internal/infra/obs"
	"gigsocket/internal/infra/security"
)

// FrameHandler runs one decoded envelope on behalf of actorID.
type FrameHandler interface {
	Handle(ctx context.Context, actorID string, env dto.EventEnvelope) error
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (security.Identity, error)
}

// Broker moves deliveries between processes. Subscribe makes this process
// receive everything published for userID.
type Broker interface {
	policies.Deliverer
	Subscribe(ctx context.Context, userID string) error
	Unsubscribe(ctx context.Context, userID string) error
}

type Config struct {
	AllowedOrigins []string
	SendBuffer     int
	ReadLimit      int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	return c
}

type GatewayDeps struct {
	Registry *Registry
	Broker   Broker
	Verifier TokenVerifier
	Handlers map[dto.MessageType]FrameHandler
	Metrics  *obs.Metrics
	Logger   *slog.Logger
	Config   Config
}

// Gateway authenticates websocket upgrades and routes inbound frames to the
// booking and chat handlers.
type Gateway struct {
	registry *Registry
	broker   Broker
	verifier TokenVerifier
	handlers map[dto.MessageType]FrameHandler
	metrics  *obs.Metrics
	logger   *slog.Logger
	cfg      Config
	origins  map[string]struct{}
	anyOrig  bool
	upgrader websocket.Upgrader
	// held across Register+Subscribe and Deregister+Unsubscribe for one user
	userLocks *userLocks

	base   context.Context
	cancel context.CancelFunc
}

func NewGateway(deps GatewayDeps) *Gateway {
	if deps.Registry == nil || deps.Broker == nil || deps.Verifier == nil {
		panic("realtime: registry, broker and verifier are required")
	}
	g := &Gateway{
		registry: deps.Registry,
		broker:   deps.Broker,
		verifier: deps.Verifier,
		handlers: deps.Handlers,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      deps.Config.withDefaults(),
		origins:  make(map[string]struct{}),

		userLocks: newUserLocks(),
	}
	if g.metrics == nil {
		g.metrics = obs.NewMetrics()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" {
			g.anyOrig = true
		}
		g.origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	// Origins are checked before the upgrade so the rejection is a plain 403.
	g.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	g.base, g.cancel = context.WithCancel(context.Background())
	return g
}

// Serve is the gin handler for GET /ws.
func (g *Gateway) Serve(c *gin.Context) {
	r := c.Request
	if origin := r.Header.Get("Origin"); origin != "" && !g.originAllowed(origin) {
		g.logger.WarnContext(r.Context(), "websocket origin rejected", "origin", origin)
		c.AbortWithStatusJSON(http.StatusForbidden, dto.NewError("origin not allowed", "", http.StatusForbidden).Payload)
		return
	}
	identity, err := g.verifier.Verify(r.Context(), tokenFrom(r))
	if err != nil {
		g.logger.DebugContext(r.Context(), "websocket token rejected", "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewError("authentication required", "", http.StatusUnauthorized).Payload)
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		g.logger.WarnContext(r.Context(), "websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}
	client := newClient(identity.UserID, conn, g.cfg)

	ctx, cancel := context.WithCancel(g.base)
	defer cancel()
	ctx = obs.WithRequestID(ctx, obs.RequestIDFromContext(r.Context()))
	log := g.logger.With("user_id", identity.UserID)

	g.userLocks.lock(identity.UserID)
	if prev := g.registry.Register(identity.UserID, client); prev != nil {
		log.InfoContext(ctx, "websocket connection replaced")
	}
	g.metrics.Connections.Inc()
	err = g.broker.Subscribe(ctx, identity.UserID)
	g.userLocks.unlock(identity.UserID)
	defer g.release(client)

	if err != nil {
		log.ErrorContext(ctx, "subscribe user channel failed", "error", err)
		client.Close()
		_ = conn.Close()
		return
	}
	log.InfoContext(ctx, "websocket connected", "connections", g.registry.Count())

	go client.writePump(log)
	go func() {
		select {
		case <-client.Done():
		case <-ctx.Done():
			client.Close()
		}
	}()

	err = client.readPump(g.cfg.ReadLimit, func(data []byte) {
		g.dispatch(ctx, client, data)
	})
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		log.DebugContext(ctx, "websocket read ended", "error", err)
	}
}

// Close ends every connection served by this gateway.
func (g *Gateway) Close() {
	g.cancel()
	g.registry.CloseAll()
}

// release drops client and the user's channel subscription. A reconnect of
// the same user waits until the unsubscribe has finished.
func (g *Gateway) release(client *Client) {
	client.Close()
	g.metrics.Connections.Dec()
	g.userLocks.lock(client.UserID())
	defer g.userLocks.unlock(client.UserID())
	if !g.registry.Deregister(client.UserID(), client) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.broker.Unsubscribe(ctx, client.UserID()); err != nil {
		g.logger.Warn("unsubscribe user channel failed", "user_id", client.UserID(), "error", err)
	}
	g.logger.Info("websocket disconnected", "user_id", client.UserID(), "connections", g.registry.Count())
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, data []byte) {
	var frame dto.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.logger.DebugContext(ctx, "dropping malformed frame", "user_id", client.UserID(), "error", err)
		g.metrics.Frames.WithLabelValues("invalid", "dropped").Inc()
		return
	}
	handler, ok := g.handlers[frame.Event]
	if !ok {
		g.logger.DebugContext(ctx, "dropping frame for unknown event", "user_id", client.UserID(), "event", frame.Event)
		g.metrics.Frames.WithLabelValues("unknown", "dropped").Inc()
		return
	}

	event := string(frame.Event)
	ctx, span := obs.Tracer().Start(ctx, "ws."+strings.ToLower(event), trace.WithAttributes(
		attribute.String("ws.user_id", client.UserID()),
		attribute.String("ws.event", event),
		attribute.String("ws.type", frame.Data.Type),
	))
	defer span.End()

	start := time.Now()
	err := handleSafely(ctx, handler, client.UserID(), frame.Data)
	g.metrics.FrameDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	if err == nil {
		g.metrics.Frames.WithLabelValues(event, "ok").Inc()
		return
	}
	g.metrics.Frames.WithLabelValues(event, "error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.reportError(ctx, client, frame, err)
}

// reportError sends the ERROR frame to the acting user only, through the
// broker when possible and straight to the client otherwise.
func (g *Gateway) reportError(ctx context.Context, client *Client, frame dto.InboundFrame, err error) {
	message, details, status := apperr.Public(err)
	attrs := []any{"user_id", client.UserID(), "event", frame.Event, "type", frame.Data.Type, "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		g.logger.ErrorContext(ctx, "frame failed", attrs...)
	} else {
		g.logger.InfoContext(ctx, "frame rejected", attrs...)
	}

	out := dto.NewError(message, details, status)
	derr := g.broker.Deliver(ctx, client.UserID(), out)
	if derr == nil {
		return
	}
	g.logger.WarnContext(ctx, "error delivery via broker failed, writing directly", "user_id", client.UserID(), "error", derr)
	// The only write that bypasses the broker. The actor's socket is held by
	// this process, so their error reply survives a Redis outage.
	data, merr := json.Marshal(out)
	if merr != nil {
		g.logger.ErrorContext(ctx, "encode error frame", "error", merr)
		return
	}
	client.Enqueue(data)
}

func handleSafely(ctx context.Context, h FrameHandler, actorID string, env dto.EventEnvelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Internal("frame handler panic", fmt.Errorf("%v\n%s", r, debug.Stack()))
		}
	}()
	return h.Handle(ctx, actorID, env)
}

func (g *Gateway) originAllowed(origin string) bool {
	if g.anyOrig {
		return true
	}
	_, ok := g.origins[strings.TrimRight(origin, "/")]
	return ok
}

// tokenFrom reads ?token= first, then an Authorization bearer header.
func tokenFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
