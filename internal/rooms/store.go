package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "pairrooms:"
	maxTxRetries = 8
)

func roomsKey(region string) string { return keyPrefix + "rooms:" + region }
func ipKey(region string) string    { return keyPrefix + "ip:" + region }

// RedisStore keeps one JSON room list per region plus a hash of IP
// bindings. Writes are optimistic: WATCH the keys, read, apply the change in
// memory, then write with MULTI/EXEC and retry if anybody else wrote first.
type RedisStore struct {
	rdb     *redis.Client
	regions map[string]int // region -> room count
}

// NewRedisStore creates a store for the given region room counts
func NewRedisStore(rdb *redis.Client, regions map[string]int) *RedisStore {
	return &RedisStore{rdb: rdb, regions: regions}
}

// HasRegion reports whether region is configured
func (s *RedisStore) HasRegion(region string) bool {
	_, ok := s.regions[region]
	return ok
}

// Rooms returns the current room list of a region. A region nobody has
// touched yet yields a fresh pool without writing anything.
func (s *RedisStore) Rooms(ctx context.Context, region string) ([]models.Room, error) {
	count, ok := s.regions[region]
	if !ok {
		return nil, ErrRegionNotFound
	}
	return s.load(ctx, s.rdb, region, count)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g getter, region string, count int) ([]models.Room, error) {
	data, err := g.Get(ctx, roomsKey(region)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newPool(count), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rooms for %s: %w", region, err)
	}

	var rooms []models.Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("decode rooms for %s: %w", region, err)
	}
	return fillPool(rooms, count), nil
}

// fillPool appends rooms missing from a stored list, e.g. after the pool
// size was raised.
func fillPool(rooms []models.Room, count int) []models.Room {
	for i := 1; i <= count; i++ {
		id := strconv.Itoa(i)
		if findRoom(rooms, id) == nil {
			rooms = append(rooms, emptyRoom(id))
		}
	}
	for i := range rooms {
		if rooms[i].Players == nil {
			rooms[i].Players = []models.Player{}
		}
	}
	return rooms
}

// RegionTx is the view a mutation gets of one region inside an optimistic
// transaction. Reads go through the watched connection; writes are queued
// and only applied if the mutation returns without error.
type RegionTx struct {
	Rooms []models.Room

	ctx     context.Context
	tx      *redis.Tx
	region  string
	ipSet   map[string]string
	ipDel   []string
	ipDirty bool
}

// Binding returns the current binding of addr, or nil
func (t *RegionTx) Binding(addr string) (*Binding, error) {
	value, err := t.tx.HGet(t.ctx, ipKey(t.region), addr).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ip binding: %w", err)
	}
	b := decodeBinding(value)
	return &b, nil
}

// Bindings returns every binding of the region keyed by address
func (t *RegionTx) Bindings() (map[string]Binding, error) {
	values, err := t.tx.HGetAll(t.ctx, ipKey(t.region)).Result()
	if err != nil {
		return nil, fmt.Errorf("read ip bindings: %w", err)
	}
	out := make(map[string]Binding, len(values))
	for addr, v := range values {
		out[addr] = decodeBinding(v)
	}
	return out, nil
}

// Bind records addr → room for the joining player
func (t *RegionTx) Bind(addr string, b Binding) {
	t.ipSet[addr] = b.encode()
	t.ipDirty = true
}

// Release drops the binding of addr
func (t *RegionTx) Release(addrs ...string) {
	if len(addrs) == 0 {
		return
	}
	for _, a := range addrs {
		delete(t.ipSet, a)
	}
	t.ipDel = append(t.ipDel, addrs...)
	t.ipDirty = true
}

// ReleaseRoom drops every binding that points at roomID
func (t *RegionTx) ReleaseRoom(roomID string) error {
	bindings, err := t.Bindings()
	if err != nil {
		return err
	}
	var addrs []string
	for addr, b := range bindings {
		if b.RoomID == roomID {
			addrs = append(addrs, addr)
		}
	}
	t.Release(addrs...)
	return nil
}

// Mutation changes a region's rooms in place and reports whether the room
// list changed. Returning an error aborts without writing. A mutation can
// run several times when the transaction is retried.
type Mutation func(tx *RegionTx) (bool, error)

// Update runs fn under optimistic concurrency control and returns the
// resulting room list and whether it changed.
func (s *RedisStore) Update(ctx context.Context, region string, fn Mutation) ([]models.Room, bool, error) {
	count, ok := s.regions[region]
	if !ok {
		return nil, false, ErrRegionNotFound
	}

	var (
		result  []models.Room
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		rooms, err := s.load(ctx, tx, region, count)
		if err != nil {
			return err
		}
		rtx := &RegionTx{Rooms: rooms, ctx: ctx, tx: tx, region: region, ipSet: map[string]string{}}
		changed, err = fn(rtx)
		if err != nil {
			return err
		}
		result = rtx.Rooms
		if !changed && !rtx.ipDirty {
			return nil
		}

		var data []byte
		if changed {
			if data, err = json.Marshal(rtx.Rooms); err != nil {
				return fmt.Errorf("encode rooms for %s: %w", region, err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if changed {
				pipe.Set(ctx, roomsKey(region), data, 0)
			}
			if len(rtx.ipDel) > 0 {
				pipe.HDel(ctx, ipKey(region), rtx.ipDel...)
			}
			for addr, v := range rtx.ipSet {
				pipe.HSet(ctx, ipKey(region), addr, v)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, roomsKey(region), ipKey(region))
		if err == nil {
			return result, changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, err
	}
	return nil, false, ErrContention
}
