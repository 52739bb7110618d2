package roomstore_memory

import (
	"context"
	"sync"

	"github.com/picswap/core/internal/model"
	usecase_session "github.com/picswap/core/internal/usecase/session"
)

// Store keeps room documents in process memory while honoring the same
// transactional and subscription contract as the Redis store. It backs
// unit tests and local runs without a Redis.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*model.Room
	subs  map[string]map[*subscription]struct{}
}

func New() *Store {
	return &Store{
		rooms: make(map[string]*model.Room),
		subs:  make(map[string]map[*subscription]struct{}),
	}
}

func (s *Store) Get(ctx context.Context, code string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return nil, nil
	}
	return room.Clone(), nil
}

func (s *Store) Set(ctx context.Context, room *model.Room) error {
	return s.Transaction(ctx, room.Code, func(*model.Room) (*model.Room, error) {
		return room, nil
	})
}

func (s *Store) Remove(ctx context.Context, code string) error {
	return s.Transaction(ctx, code, func(current *model.Room) (*model.Room, error) {
		if current == nil {
			return current, nil
		}
		return nil, nil
	})
}

// Transaction runs fn against the current document under the store lock,
// so the read-check-write sequence is a single atomic step.
func (s *Store) Transaction(ctx context.Context, code string, fn usecase_session.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snapshot *model.Room
	if current, ok := s.rooms[code]; ok {
		snapshot = current.Clone()
	}

	next, err := fn(snapshot)
	if err != nil {
		return err
	}
	if next == snapshot {
		return nil
	}

	var version uint64 = 1
	if snapshot != nil {
		version = snapshot.Version + 1
	}

	if next == nil {
		delete(s.rooms, code)
		s.notifyLocked(code, model.RoomEvent{Deleted: true, Version: version})
		return nil
	}

	committed := next.Clone()
	committed.Version = version
	s.rooms[code] = committed
	s.notifyLocked(code, model.RoomEvent{Room: committed.Clone(), Version: version})
	return nil
}

func (s *Store) Subscribe(ctx context.Context, code string) (usecase_session.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{
		store:  s,
		code:   code,
		events: make(chan model.RoomEvent, subscriptionBuffer),
	}
	if _, ok := s.subs[code]; !ok {
		s.subs[code] = make(map[*subscription]struct{})
	}
	s.subs[code][sub] = struct{}{}

	if current, ok := s.rooms[code]; ok {
		sub.events <- model.RoomEvent{Room: current.Clone(), Version: current.Version}
	} else {
		sub.events <- model.RoomEvent{Deleted: true}
	}
	return sub, nil
}

const subscriptionBuffer = 16

func (s *Store) notifyLocked(code string, ev model.RoomEvent) {
	for sub := range s.subs[code] {
		sub.push(ev)
	}
}

type subscription struct {
	store  *Store
	code   string
	events chan model.RoomEvent
	once   sync.Once
}

// push never blocks: the feed carries full snapshots, so for a slow
// consumer the oldest pending event is dropped in favor of the newest.
func (s *subscription) push(ev model.RoomEvent) {
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *subscription) Events() <-chan model.RoomEvent {
	return s.events
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()

		if subs, ok := s.store.subs[s.code]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.store.subs, s.code)
			}
		}
		close(s.events)
	})
}
