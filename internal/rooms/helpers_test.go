package rooms

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegion = "eu"

// recorder is a Publisher that keeps every decoded event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, region string, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	pub    *recorder
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	return newTestEnvOn(t, mr, opts)
}

func newTestEnvOn(t *testing.T, mr *miniredis.Miniredis, opts Options) *testEnv {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine(ctx, rdb, map[string]int{testRegion: 6, "us": 2}, pub, opts)
	t.Cleanup(func() {
		cancel()
		e.Scheduler().Wait()
		rdb.Close()
	})
	return &testEnv{engine: e, mr: mr, rdb: rdb, pub: pub}
}

func (env *testEnv) room(t *testing.T, roomID string) models.Room {
	t.Helper()
	room, err := env.engine.Room(context.Background(), testRegion, roomID)
	require.NoError(t, err)
	return room
}

func (env *testEnv) join(t *testing.T, roomID, tag, addr string) models.Player {
	t.Helper()
	p, err := env.engine.Join(context.Background(), testRegion, roomID, tag, addr)
	require.NoError(t, err)
	return p
}

// assertSnapshotMatchesStore checks the last published snapshot against what
// the store holds now.
func (env *testEnv) assertSnapshotMatchesStore(t *testing.T) {
	t.Helper()
	snaps := env.pub.ofType(EventSnapshot)
	require.NotEmpty(t, snaps)
	stored, err := env.engine.Snapshot(context.Background(), testRegion)
	require.NoError(t, err)
	assert.Equal(t, stored, snaps[len(snaps)-1].Rooms)
}
