package roomstore_redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/picswap/core/internal/model"
	usecase_session "github.com/picswap/core/internal/usecase/session"
)

const (
	keyPrefix     = "room:"
	channelPrefix = "room:events:"

	// Optimistic retries when a concurrent commit touches the watched key.
	txRetries = 8

	subscriptionBuffer = 16
)

var ErrTxContention = errors.New("room transaction contention")

// Store persists each room as one JSON document under a single key and
// publishes every committed state on the room's pub/sub channel, so
// subscribers always receive full snapshots in commit order.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default(),
	}
}

func roomKey(code string) string {
	return keyPrefix + code
}

func roomChannel(code string) string {
	return channelPrefix + code
}

// event is the wire form of one change-feed delivery.
type event struct {
	Room    *model.Room `json:"room,omitempty"`
	Deleted bool        `json:"deleted,omitempty"`
	Version uint64      `json:"version"`
}

func (s *Store) Get(ctx context.Context, code string) (*model.Room, error) {
	raw, err := s.client.Get(ctx, roomKey(code)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var room model.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return nil, err
	}
	return &room, nil
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

// Transaction applies fn under WATCH on the room key: the write commits
// only if no other client touched the key between the read and EXEC.
// Interference reruns fn against the fresh state, so the losing side of a
// race re-evaluates its precondition instead of overwriting the winner.
func (s *Store) Transaction(ctx context.Context, code string, fn usecase_session.TxFunc) error {
	key := roomKey(code)

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			var current *model.Room

			raw, err := tx.Get(ctx, key).Result()
			switch {
			case err == redis.Nil:
			case err != nil:
				return err
			default:
				current = &model.Room{}
				if err := json.Unmarshal([]byte(raw), current); err != nil {
					return err
				}
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if next == current {
				return nil
			}

			var version uint64 = 1
			if current != nil {
				version = current.Version + 1
			}

			if next == nil {
				gone, err := json.Marshal(event{Deleted: true, Version: version})
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.Publish(ctx, roomChannel(code), gone)
					return nil
				})
				return err
			}

			committed := next.Clone()
			committed.Version = version
			payload, err := json.Marshal(committed)
			if err != nil {
				return err
			}
			feed, err := json.Marshal(event{Room: committed, Version: version})
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				pipe.Publish(ctx, roomChannel(code), feed)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		return err
	}

	return ErrTxContention
}

// Subscribe confirms the pub/sub registration before reading the initial
// snapshot, so no commit between the two can be missed. Reconnects inside
// go-redis re-deliver later full states; duplicates are dropped by version.
func (s *Store) Subscribe(ctx context.Context, code string) (usecase_session.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, roomChannel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	initial, err := s.Get(ctx, code)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{
		pubsub: pubsub,
		events: make(chan model.RoomEvent, subscriptionBuffer),
	}
	go sub.pump(initial, s.logger)
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	events chan model.RoomEvent
	once   sync.Once
}

func (s *subscription) pump(initial *model.Room, logger *slog.Logger) {
	defer close(s.events)

	var last uint64
	if initial != nil {
		last = initial.Version
		s.push(model.RoomEvent{Room: initial, Version: initial.Version})
	} else {
		s.push(model.RoomEvent{Deleted: true})
	}

	for msg := range s.pubsub.Channel() {
		var ev event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("bad room event payload", "channel", msg.Channel, "error", err)
			continue
		}
		if !ev.Deleted && ev.Version <= last {
			// Duplicate or older than the snapshot we started from.
			continue
		}
		last = ev.Version
		s.push(model.RoomEvent{Room: ev.Room, Deleted: ev.Deleted, Version: ev.Version})
	}
}

// push never blocks; a slow consumer loses intermediate snapshots, never
// the newest one.
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
		_ = s.pubsub.Close()
	})
}
