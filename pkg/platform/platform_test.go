package platform

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-commerce-router/pkg/gateway"
	"github.com/txn2/mcp-commerce-router/pkg/profile"
	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// stubGateway answers every turn with a fixed reply.
type stubGateway struct {
	reply string
	calls int
}

func (g *stubGateway) Generate(_ context.Context, _ gateway.Request) (*gateway.Result, error) {
	g.calls++
	return &gateway.Result{
		Reply:    g.reply,
		Messages: []session.Message{{Role: session.RoleAssistant, Content: g.reply}},
	}, nil
}

func newTestPlatform(t *testing.T, opts ...Option) *Platform {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Profiles.Backend = "static"
	cfg.Profiles.Static = map[string]*profile.Profile{
		"u1": {UserID: "u1", FullName: "Ada Lovelace", Email: "ada@example.com"},
	}

	opts = append([]Option{WithGateway(&stubGateway{reply: "Done."})}, opts...)
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

// connectTestClient connects an in-memory MCP client to a server and returns
// the session. The caller must call cleanup() when done.
func connectTestClient(t *testing.T, server *mcp.Server) (*mcp.ClientSession, func()) {
	t.Helper()
	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0"}, nil)
	clientSession, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)

	cleanup := func() {
		_ = clientSession.Close()
		_ = serverSession.Close()
	}
	return clientSession, cleanup
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_Assembly(t *testing.T) {
	p := newTestPlatform(t)

	assert.NotNil(t, p.Router())
	assert.NotNil(t, p.Sessions())
	assert.NotNil(t, p.MCPServer())
	assert.NotNil(t, p.Config())
}

func TestPlatform_StartStop(t *testing.T) {
	p := newTestPlatform(t)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Close())
}

func TestPlatform_ListsTools(t *testing.T) {
	p := newTestPlatform(t)
	client, cleanup := connectTestClient(t, p.MCPServer())
	defer cleanup()

	res, err := client.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "route_message")
	assert.Contains(t, names, "profile_info")
}
