package providers

import (
	"fmt"
	"net/url"

	"github.com/meetscribe/realtime/config"
	"github.com/meetscribe/realtime/src/cache"
	"github.com/meetscribe/realtime/src/conn"
	"github.com/meetscribe/realtime/src/i18n"
	"github.com/meetscribe/realtime/src/notify"
	"github.com/meetscribe/realtime/src/plugins"
	"github.com/meetscribe/realtime/src/router"
	"github.com/meetscribe/realtime/src/session"
	"github.com/meetscribe/realtime/src/types"
)

// RealtimePlugin assembles the real-time subsystem for a host app:
// session, connection manager, message router, and the shared cache
// with optional cross-instance invalidation over Redis.
type RealtimePlugin struct {
	active      bool
	ctx         *plugins.PluginContext
	cfg         *config.Config
	session     *session.Session
	manager     *conn.Manager
	router      *router.Router
	store       *cache.Store
	invalidator *cache.RedisInvalidator
}

// NewRealtimePlugin creates a new real-time plugin instance.
func NewRealtimePlugin() *RealtimePlugin { return &RealtimePlugin{} }

func (p *RealtimePlugin) ID() string      { return "meetscribe/realtime" }
func (p *RealtimePlugin) Name() string    { return "Realtime" }
func (p *RealtimePlugin) Version() string { return "0.1.0" }
func (p *RealtimePlugin) IsActive() bool  { return p.active }

// Activate wires the subsystem together and attaches the router to
// the connection manager. The connection itself is established when
// the host sets a token and calls Manager().Connect().
func (p *RealtimePlugin) Activate(ctx *plugins.PluginContext) error {
	p.ctx = ctx
	p.cfg = config.FromEnv()
	p.session = session.New(ctx.Logger)
	p.store = cache.NewStore(ctx.Logger)

	// Attempt Redis invalidation fan-out (non-fatal if unavailable).
	invalidator := p.initInvalidator(ctx)

	p.manager = conn.NewManager(conn.Options{
		Config:   p.cfg,
		Tokens:   p.session,
		BuildURL: TokenURLBuilder(p.cfg.Endpoint),
		Session:  p.session,
		Logger:   ctx.Logger,
	})
	p.router = router.New(router.Deps{
		Cache:      invalidator,
		Notifier:   notify.NewLogNotifier(ctx.Logger),
		Translator: i18n.DefaultCatalog(),
		Session:    p.session,
	}, ctx.Logger)
	p.router.Attach(p.manager)

	// Teardown on logout is forced; ordinary unmounts keep the
	// persistent connection alive.
	p.session.OnLogout(p.manager.ForceDisconnect)

	p.active = true
	ctx.Logger.Info().Str("plugin", p.ID()).Msg("realtime plugin activated")
	return nil
}

// initInvalidator tries to start the Redis fan-out. If Redis is not
// reachable, invalidations stay local to this instance.
func (p *RealtimePlugin) initInvalidator(ctx *plugins.PluginContext) types.Invalidator {
	cfg := cache.RedisConfigFromEnv()
	ri := cache.NewRedisInvalidator(cfg, p.store, ctx.Logger)

	if err := ri.Start(); err != nil {
		ctx.Logger.Warn().Err(err).Msg("redis invalidator unavailable, running standalone")
		return p.store
	}

	p.invalidator = ri
	ctx.Logger.Info().Str("redis_addr", cfg.Addr).Msg("redis invalidator connected")
	return ri
}

// Deactivate detaches the router, tears the connection down, and
// stops the Redis fan-out.
func (p *RealtimePlugin) Deactivate() error {
	if p.router != nil && p.manager != nil {
		p.router.Detach(p.manager)
	}
	if p.manager != nil {
		p.manager.ForceDisconnect()
	}
	if p.invalidator != nil {
		if err := p.invalidator.Stop(); err != nil {
			p.ctx.Logger.Error().Err(err).Msg("invalidator stop error")
		}
		p.invalidator = nil
	}
	p.active = false
	return nil
}

// Manager returns the connection manager.
func (p *RealtimePlugin) Manager() *conn.Manager { return p.manager }

// Router returns the message router.
func (p *RealtimePlugin) Router() *router.Router { return p.router }

// Session returns the session facade.
func (p *RealtimePlugin) Session() *session.Session { return p.session }

// Services exposes the subsystem for dependency injection.
func (p *RealtimePlugin) Services() []plugins.ServiceDefinition {
	return []plugins.ServiceDefinition{
		{ID: "realtime.manager", Factory: func() any { return p.manager }},
		{ID: "realtime.router", Factory: func() any { return p.router }},
		{ID: "realtime.cache", Factory: func() any { return p.store }},
		{ID: "realtime.session", Factory: func() any { return p.session }},
	}
}

// TokenURLBuilder returns a URLBuilder that appends the bearer token
// to the endpoint's query string.
func TokenURLBuilder(endpoint string) types.URLBuilder {
	return func(token string) (string, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("invalid realtime endpoint %q: %w", endpoint, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return "", fmt.Errorf("realtime endpoint %q: scheme must be ws or wss", endpoint)
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
}
