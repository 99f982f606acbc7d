package platform

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL driver, registered for database/sql.
	_ "github.com/lib/pq"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-commerce-router/pkg/database/migrate"
	"github.com/txn2/mcp-commerce-router/pkg/gateway"
	"github.com/txn2/mcp-commerce-router/pkg/profile"
	profilepg "github.com/txn2/mcp-commerce-router/pkg/profile/postgres"
	"github.com/txn2/mcp-commerce-router/pkg/router"
	"github.com/txn2/mcp-commerce-router/pkg/session"
	sessionpg "github.com/txn2/mcp-commerce-router/pkg/session/postgres"
)

// startupTimeout bounds database connectivity checks at startup.
const startupTimeout = 30 * time.Second

// Platform is the assembled commerce router.
type Platform struct {
	config    *Config
	lifecycle *Lifecycle

	db       *sql.DB
	store    session.Store
	profiles profile.Provider
	gw       gateway.Gateway
	sessions *session.Manager
	router   *router.Router
	sweeper  *session.Sweeper

	mcpServer *mcp.Server
}

// Option overrides a platform component, used by tests and embedders.
type Option func(*options)

type options struct {
	store    session.Store
	profiles profile.Provider
	gw       gateway.Gateway
}

// WithSessionStore overrides the configured session store.
func WithSessionStore(store session.Store) Option {
	return func(o *options) { o.store = store }
}

// WithProfileProvider overrides the configured profile provider.
func WithProfileProvider(p profile.Provider) Option {
	return func(o *options) { o.profiles = p }
}

// WithGateway overrides the configured agent gateway.
func WithGateway(gw gateway.Gateway) Option {
	return func(o *options) { o.gw = gw }
}

// New assembles a platform from configuration. Remote resources are not
// touched until Start.
func New(cfg *Config, opts ...Option) (*Platform, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Platform{
		config:    cfg,
		lifecycle: NewLifecycle(),
	}

	if err := p.initStorage(&o); err != nil {
		return nil, err
	}
	p.initProfiles(&o)
	p.initGateway(&o)
	p.initCore()
	p.initMCPServer()

	return p, nil
}

// initStorage selects the session store and, when needed, opens the
// shared database handle.
func (p *Platform) initStorage(o *options) error {
	needsDB := (o.store == nil && p.config.Sessions.Backend == "postgres") ||
		(o.profiles == nil && p.config.Profiles.Backend == "postgres")
	if needsDB {
		db, err := sql.Open("postgres", p.config.Database.DSN)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
		p.db = db

		p.lifecycle.OnStart(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, startupTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("pinging database: %w", err)
			}
			return migrate.Run(db)
		})
		p.lifecycle.OnStop(func(context.Context) error {
			return db.Close()
		})
	}

	switch {
	case o.store != nil:
		p.store = o.store
	case p.config.Sessions.Backend == "postgres":
		p.store = sessionpg.New(p.db)
	default:
		p.store = session.NewMemoryStore()
	}
	return nil
}

func (p *Platform) initProfiles(o *options) {
	switch {
	case o.profiles != nil:
		p.profiles = o.profiles
	case p.config.Profiles.Backend == "postgres":
		p.profiles = profilepg.New(p.db)
	case p.config.Profiles.Backend == "static":
		p.profiles = profile.NewStaticProvider(p.config.Profiles.Static)
	default:
		p.profiles = nil
	}
}

func (p *Platform) initGateway(o *options) {
	if o.gw != nil {
		p.gw = o.gw
		return
	}
	p.gw = gateway.NewOpenAIGateway(gateway.OpenAIConfig{
		BaseURL:   p.config.Gateway.BaseURL,
		APIKey:    p.config.Gateway.APIKey,
		Model:     p.config.Gateway.Model,
		MaxTokens: p.config.Gateway.MaxTokens,
		Timeout:   p.config.Gateway.Timeout,
	})
}

func (p *Platform) initCore() {
	p.sessions = session.NewManager(p.store, p.profiles, session.ManagerConfig{
		TTL: p.config.Sessions.TTL,
	})
	p.router = router.New(p.sessions, p.gw, router.Config{
		Services: p.config.ServiceCatalog(),
	})
	p.sweeper = session.NewSweeper(p.store, session.SweeperConfig{
		Retention: p.config.Sessions.Retention,
		Interval:  p.config.Sessions.SweepInterval,
	})
	p.lifecycle.RegisterComponent(p.sweeper)
}

func (p *Platform) initMCPServer() {
	p.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    p.config.Server.Name,
		Version: p.config.Server.Version,
	}, nil)
	p.registerRouteTool()
	p.registerProfileTool()
}

// Start brings up the platform: database connectivity, migrations, and
// the cleanup sweeper.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Close shuts the platform down in reverse start order.
func (p *Platform) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return p.lifecycle.Stop(ctx)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Router returns the turn router.
func (p *Platform) Router() *router.Router {
	return p.router
}

// Sessions returns the session manager.
func (p *Platform) Sessions() *session.Manager {
	return p.sessions
}

// MCPServer returns the MCP server with the router tools registered.
func (p *Platform) MCPServer() *mcp.Server {
	return p.mcpServer
}
