package rooms

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type timerKind string

const (
	timerCountdown timerKind = "countdown"
	timerReset     timerKind = "reset"
)

// Scheduler drives countdown ticks and the matched → waiting reset.
//
// Timers only live in memory and are keyed by the persisted mark they were
// armed with (countdownStart or matchedAt). Every tick re-reads the room and
// stops as soon as the mark no longer matches, so a stale timer can never act
// on a room that was reset or refilled. Any process can arm a timer from
// persisted state; a short Redis lease per (room, mark) makes exactly one of
// them publish ticks and resolve the room, and another takes over when the
// owner dies.
type Scheduler struct {
	engine     *Engine
	rdb        *redis.Client
	instanceID string

	duration  time.Duration
	viewDelay time.Duration
	tick      time.Duration
	opTimeout time.Duration

	ctx   context.Context
	mu    sync.Mutex
	armed map[string]time.Time
	wg    sync.WaitGroup
}

func newScheduler(ctx context.Context, e *Engine, rdb *redis.Client, opts Options) *Scheduler {
	return &Scheduler{
		engine:     e,
		rdb:        rdb,
		instanceID: uuid.NewString(),
		duration:   opts.CountdownDuration,
		viewDelay:  opts.MatchedViewDelay,
		tick:       opts.CountdownTick,
		opTimeout:  3 * time.Second,
		ctx:        ctx,
		armed:      make(map[string]time.Time),
	}
}

func timerID(kind timerKind, region, roomID string) string {
	return string(kind) + ":" + region + ":" + roomID
}

func leaseKey(kind timerKind, region, roomID string, mark time.Time) string {
	return keyPrefix + "lease:" + string(kind) + ":" + region + ":" + roomID + ":" + strconv.FormatInt(mark.UnixNano(), 10)
}

// ArmCountdown starts the tick loop for a countdown that began at start
func (s *Scheduler) ArmCountdown(region, roomID string, start time.Time) {
	s.arm(timerCountdown, region, roomID, start, func(ctx context.Context) bool {
		return s.countdownStep(ctx, region, roomID, start)
	})
}

// ArmReset starts the loop that clears a room matched at since
func (s *Scheduler) ArmReset(region, roomID string, since time.Time) {
	s.arm(timerReset, region, roomID, since, func(ctx context.Context) bool {
		return s.resetStep(ctx, region, roomID, since)
	})
}

// Recover arms timers for every room whose persisted state needs one.
func (s *Scheduler) Recover(region string, rooms []models.Room) {
	for _, r := range rooms {
		switch {
		case r.Status == models.StatusCountdown && r.CountdownStart != nil:
			s.ArmCountdown(region, r.ID, *r.CountdownStart)
		case r.Status == models.StatusMatched && r.MatchedAt != nil:
			s.ArmReset(region, r.ID, *r.MatchedAt)
		}
	}
}

// Armed reports how many timers this process is running
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// Wait blocks until every timer loop has exited
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) arm(kind timerKind, region, roomID string, mark time.Time, step func(context.Context) bool) {
	id := timerID(kind, region, roomID)

	s.mu.Lock()
	if current, ok := s.armed[id]; ok && current.Equal(mark) {
		s.mu.Unlock()
		return
	}
	s.armed[id] = mark
	s.mu.Unlock()

	lease := leaseKey(kind, region, roomID, mark)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.disarm(id, mark, lease)

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
			}

			if s.superseded(id, mark) {
				return
			}

			ctx, cancel := context.WithTimeout(s.ctx, s.opTimeout)
			owner, err := s.claim(ctx, lease)
			if err != nil {
				cancel()
				log.Warn().Str("module", "countdown").Str("timer", id).Err(err).Msg("lease check failed; skipping tick")
				continue
			}
			done := false
			if owner {
				done = step(ctx)
			} else {
				done = s.stale(ctx, kind, region, roomID, mark)
			}
			cancel()
			if done {
				return
			}
		}
	}()
}

// superseded reports whether a newer timer replaced this one in-process.
func (s *Scheduler) superseded(id string, mark time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.armed[id]
	return !ok || !current.Equal(mark)
}

func (s *Scheduler) disarm(id string, mark time.Time, lease string) {
	s.mu.Lock()
	if current, ok := s.armed[id]; ok && current.Equal(mark) {
		delete(s.armed, id)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	if owner, err := s.rdb.Get(ctx, lease).Result(); err == nil && owner == s.instanceID {
		s.rdb.Del(ctx, lease)
	}
}

// claim takes or refreshes the lease for one timer mark.
func (s *Scheduler) claim(ctx context.Context, key string) (bool, error) {
	ttl := 3 * s.tick
	ok, err := s.rdb.SetNX(ctx, key, s.instanceID, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	owner, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if owner != s.instanceID {
		return false, nil
	}
	return true, s.rdb.PExpire(ctx, key, ttl).Err()
}

// stale lets a follower stop once the room moved past its mark.
func (s *Scheduler) stale(ctx context.Context, kind timerKind, region, roomID string, mark time.Time) bool {
	room, err := s.engine.Room(ctx, region, roomID)
	if err != nil {
		return false
	}
	if kind == timerCountdown {
		return !countdownMatches(&room, mark)
	}
	return !matchedSince(&room, mark)
}

func (s *Scheduler) countdownStep(ctx context.Context, region, roomID string, start time.Time) bool {
	room, err := s.engine.Room(ctx, region, roomID)
	if err != nil {
		log.Warn().Str("module", "countdown").Str("region", region).Str("room", roomID).Err(err).Msg("tick skipped")
		return false
	}
	if !countdownMatches(&room, start) {
		return true
	}

	remaining := s.duration - s.engine.now().Sub(start)
	if remaining > 0 {
		s.engine.broadcaster.Tick(ctx, region, roomID, remaining)
		return false
	}

	room, err = s.engine.Timeout(ctx, region, roomID, start)
	if err != nil {
		log.Warn().Str("module", "countdown").Str("region", region).Str("room", roomID).Err(err).Msg("timeout failed; retrying next tick")
		return false
	}
	if room.Status == models.StatusMatched && room.MatchedAt != nil {
		s.ArmReset(region, roomID, *room.MatchedAt)
	}
	return true
}

func (s *Scheduler) resetStep(ctx context.Context, region, roomID string, since time.Time) bool {
	if s.engine.now().Sub(since) < s.viewDelay {
		return false
	}
	if err := s.engine.ResetMatched(ctx, region, roomID, since); err != nil {
		log.Warn().Str("module", "countdown").Str("region", region).Str("room", roomID).Err(err).Msg("matched reset failed; retrying next tick")
		return false
	}
	return true
}
