package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffline/internal/config"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/events"
)

func TestOpenSeedsCatalogAndWiresDispatcher(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ws, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	defer ws.Close()

	profiles, err := ws.Engine.Repo.ListCatalog(ctx, domain.CatalogProfile)
	require.NoError(t, err)
	assert.NotEmpty(t, profiles)
	assert.Equal(t, 1, ws.Dispatcher.Len(), "default config enables the log sink")
	assert.NotNil(t, ws.Engine.AfterCommit)

	_, err = ws.Engine.CreateProject(ctx, engine.CreateProjectOptions{ID: "p1", Name: "P1", OwnerID: "c1", ActorID: "c1"})
	require.NoError(t, err)
	ws.Flush(ctx)

	sweeper := ws.Sweeper()
	require.NotNil(t, sweeper)
}

type collectSink struct {
	mu    sync.Mutex
	types []string
}

func (c *collectSink) Name() string { return "collect" }

func (c *collectSink) Deliver(_ context.Context, evt domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, evt.Type)
	return nil
}

func TestEventsAfterOpenReachSinksBeforeFirstPoll(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	_, err = first.Engine.CreateProject(ctx, engine.CreateProjectOptions{ID: "old", Name: "Old", OwnerID: "c1", ActorID: "c1"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	ws, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	defer ws.Close()
	sink := &collectSink{}
	ws.Dispatcher.Add(sink)

	// committed after Open but before the dispatcher ever polls
	_, err = ws.Engine.CreateProject(ctx, engine.CreateProjectOptions{ID: "new", Name: "New", OwnerID: "c1", ActorID: "c1"})
	require.NoError(t, err)
	ws.Flush(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{events.ProjectCreated}, sink.types)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	yml := `booking:
  offer_ttl: 1h
notifications:
  log: false
rbac:
  roles:
    admin:
      permissions: ["*"]
catalog:
  profiles:
    - {id: welder}
  seniorities:
    - {id: senior, rank: 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(yml), 0o644))
	ctx := context.Background()
	ws, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, time.Hour, ws.Config.Booking.OfferTTLDuration())
	assert.Equal(t, 0, ws.Dispatcher.Len())
	items, err := ws.Engine.Repo.ListCatalog(ctx, domain.CatalogProfile)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "welder", items[0].ID)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), Driver: "oracle"})
	require.Error(t, err)
}
