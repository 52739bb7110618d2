package usecase_session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picswap/core/internal/model"
	roomstore_memory "github.com/picswap/core/internal/roomstore/memory"
	usecase_session "github.com/picswap/core/internal/usecase/session"
)

type presenceFake struct {
	mu    sync.Mutex
	rooms map[string]string
}

func newPresenceFake() *presenceFake {
	return &presenceFake{rooms: make(map[string]string)}
}

func (p *presenceFake) Track(ctx context.Context, userID, roomCode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[userID] = roomCode
	return nil
}

func (p *presenceFake) Clear(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, userID)
	return nil
}

func (p *presenceFake) RoomOf(ctx context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[userID], nil
}

type archiveFake struct {
	mu      sync.Mutex
	records []model.MatchRecord
}

func (a *archiveFake) Record(ctx context.Context, m model.MatchRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, m)
	return nil
}

func (a *archiveFake) all() []model.MatchRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.MatchRecord(nil), a.records...)
}

type resources struct {
	store    *roomstore_memory.Store
	presence *presenceFake
	archive  *archiveFake
	usecase  *usecase_session.Usecase
	ctx      context.Context
}

func initResources(opts ...usecase_session.Option) *resources {
	store := roomstore_memory.New()
	presence := newPresenceFake()
	archive := &archiveFake{}
	return &resources{
		store:    store,
		presence: presence,
		archive:  archive,
		usecase:  usecase_session.New(store, presence, archive, opts...),
		ctx:      context.Background(),
	}
}

func fixedCodes(codes ...string) func() string {
	i := 0
	return func() string {
		code := codes[i%len(codes)]
		i++
		return code
	}
}

type SessionUnitSuite struct {
	suite.Suite
}

func (s *SessionUnitSuite) TestCreate(t provider.T) {
	t.Run("Should create a waiting room owned by the host", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")

		require.NoError(t, err)
		assert.Len(t, code, model.CodeLength)
		assert.Equal(t, model.NormalizeCode(code), code)

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, model.StatusWaiting, room.Status)
		assert.Equal(t, "host-1", room.HostID)
		assert.Empty(t, room.GuestID)
		assert.Equal(t, "host-1", room.CurrentTurnID)
		assert.False(t, room.CreatedAt.IsZero())
	})

	t.Run("Should retry with a fresh code on collision", func(t provider.T) {
		r := initResources(usecase_session.WithCodeGenerator(fixedCodes("AAAA", "AAAA", "BBBB")))

		first, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		assert.Equal(t, "AAAA", first)

		second, err := r.usecase.Create(r.ctx, "host-2")
		require.NoError(t, err)
		assert.Equal(t, "BBBB", second)
	})

	t.Run("Should give up after bounded retries", func(t provider.T) {
		r := initResources(usecase_session.WithCodeGenerator(fixedCodes("AAAA")))

		_, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		_, err = r.usecase.Create(r.ctx, "host-2")
		assert.ErrorIs(t, err, usecase_session.ErrRoomCreateFailed)
	})

	t.Run("Should reconcile a stale room left by the same host", func(t provider.T) {
		r := initResources(usecase_session.WithCodeGenerator(fixedCodes("AAAA", "BBBB")))

		first, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		second, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		stale, err := r.store.Get(r.ctx, first)
		require.NoError(t, err)
		assert.Nil(t, stale)
	})
}

func (s *SessionUnitSuite) TestJoin(t provider.T) {
	t.Run("Should join and start playing", func(t provider.T) {
		r := initResources(usecase_session.WithCodeGenerator(fixedCodes("K7QM")))

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		// Codes are case-insensitive on input.
		err = r.usecase.Join(r.ctx, "guest-1", "k7qm")
		require.NoError(t, err)

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, model.StatusPlaying, room.Status)
		assert.Equal(t, "host-1", room.HostID)
		assert.Equal(t, "guest-1", room.GuestID)
		assert.Equal(t, "host-1", room.CurrentTurnID)
	})

	t.Run("Should fail for unknown, full and ended rooms", func(t provider.T) {
		r := initResources(usecase_session.WithCodeGenerator(fixedCodes("AAAA")))

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		require.NoError(t, r.usecase.Join(r.ctx, "guest-1", code))

		require.NoError(t, r.store.Set(r.ctx, &model.Room{
			Code:   "ENDD",
			HostID: "host-9",
			Status: model.StatusEnded,
		}))

		testCases := []struct {
			name          string
			guestID       string
			code          string
			expectedError error
		}{
			{name: "unknown room", guestID: "guest-2", code: "ZZZZ", expectedError: usecase_session.ErrRoomNotFound},
			{name: "full room", guestID: "guest-2", code: code, expectedError: usecase_session.ErrRoomFull},
			{name: "ended room", guestID: "guest-2", code: "ENDD", expectedError: usecase_session.ErrRoomEnded},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t provider.T) {
				err := r.usecase.Join(r.ctx, tc.guestID, tc.code)
				assert.ErrorIs(t, err, tc.expectedError)
			})
		}
	})

	t.Run("Should hand the turn back to the host when its holder left", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		require.NoError(t, r.usecase.Join(r.ctx, "guest-1", code))

		// Flip the turn to the guest, then lose the guest.
		require.NoError(t, r.usecase.SendImage(r.ctx, code, "host-1", "img:1"))
		require.NoError(t, r.usecase.Leave(r.ctx, "guest-1", code))

		require.NoError(t, r.usecase.Join(r.ctx, "guest-2", code))

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, "host-1", room.CurrentTurnID)

		// The game is actually playable again.
		require.NoError(t, r.usecase.SendImage(r.ctx, code, "host-1", "img:2"))
	})

	t.Run("Should let exactly one of two racing guests in", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, guest := range []string{"guest-1", "guest-2"} {
			wg.Add(1)
			go func(i int, guest string) {
				defer wg.Done()
				errs[i] = r.usecase.Join(r.ctx, guest, code)
			}(i, guest)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, usecase_session.ErrRoomFull)
			}
		}
		assert.Equal(t, 1, winners)

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, model.StatusPlaying, room.Status)
		assert.Contains(t, []string{"guest-1", "guest-2"}, room.GuestID)
	})
}

func (s *SessionUnitSuite) TestSendImage(t provider.T) {
	playingRoom := func(r *resources) string {
		code, err := r.usecase.Create(r.ctx, "host-1")
		if err != nil {
			panic(err)
		}
		if err := r.usecase.Join(r.ctx, "guest-1", code); err != nil {
			panic(err)
		}
		return code
	}

	t.Run("Should record the handoff and flip the turn atomically", func(t provider.T) {
		r := initResources()
		code := playingRoom(r)

		require.NoError(t, r.usecase.SendImage(r.ctx, code, "host-1", "img:1"))

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, "guest-1", room.CurrentTurnID)
		require.NotNil(t, room.LastImage)
		assert.Equal(t, "host-1", room.LastImage.SenderID)
		assert.Equal(t, "img:1", room.LastImage.ImageRef)
		assert.False(t, room.LastImage.SentAt.IsZero())
		assert.Equal(t, 1, room.ImageCount)

		// And back again.
		require.NoError(t, r.usecase.SendImage(r.ctx, code, "guest-1", "img:2"))

		room, err = r.store.Get(r.ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "host-1", room.CurrentTurnID)
		assert.Equal(t, "guest-1", room.LastImage.SenderID)
		assert.Equal(t, 2, room.ImageCount)
	})

	t.Run("Should reject a sender who does not hold the turn", func(t provider.T) {
		r := initResources()
		code := playingRoom(r)

		require.NoError(t, r.usecase.SendImage(r.ctx, code, "host-1", "img:1"))

		err := r.usecase.SendImage(r.ctx, code, "host-1", "img:2")
		assert.ErrorIs(t, err, usecase_session.ErrNotYourTurn)

		room, getErr := r.store.Get(r.ctx, code)
		require.NoError(t, getErr)
		assert.Equal(t, "img:1", room.LastImage.ImageRef)
		assert.Equal(t, 1, room.ImageCount)
	})

	t.Run("Should reject sends outside an active game", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		err = r.usecase.SendImage(r.ctx, code, "host-1", "img:1")
		assert.ErrorIs(t, err, usecase_session.ErrRoomNotPlaying)

		err = r.usecase.SendImage(r.ctx, "ZZZZ", "host-1", "img:1")
		assert.ErrorIs(t, err, usecase_session.ErrRoomNotFound)
	})

	t.Run("Should let exactly one of two racing sends through", func(t provider.T) {
		r := initResources()
		code := playingRoom(r)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = r.usecase.SendImage(r.ctx, code, "host-1", "img:race")
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, usecase_session.ErrNotYourTurn)
			}
		}
		assert.Equal(t, 1, winners)

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "guest-1", room.CurrentTurnID)
		assert.Equal(t, 1, room.ImageCount)
	})
}

func (s *SessionUnitSuite) TestLeave(t provider.T) {
	t.Run("Should revert to waiting when the guest leaves", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		require.NoError(t, r.usecase.Join(r.ctx, "guest-1", code))

		require.NoError(t, r.usecase.Leave(r.ctx, "guest-1", code))

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, model.StatusWaiting, room.Status)
		assert.Empty(t, room.GuestID)
		assert.Equal(t, "host-1", room.HostID)
		assert.Equal(t, "host-1", room.CurrentTurnID)

		// The freed slot accepts a new guest.
		require.NoError(t, r.usecase.Join(r.ctx, "guest-2", code))
	})

	t.Run("Should delete the room when the lone host leaves", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		require.NoError(t, r.usecase.Leave(r.ctx, "host-1", code))

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		assert.Nil(t, room)
		assert.Empty(t, r.archive.all())
	})

	t.Run("Should archive and delete when the host abandons a match", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		require.NoError(t, r.usecase.Join(r.ctx, "guest-1", code))
		require.NoError(t, r.usecase.SendImage(r.ctx, code, "host-1", "img:1"))

		require.NoError(t, r.usecase.Leave(r.ctx, "host-1", code))

		room, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		assert.Nil(t, room)

		records := r.archive.all()
		require.Len(t, records, 1)
		assert.Equal(t, code, records[0].Code)
		assert.Equal(t, "host-1", records[0].HostID)
		assert.Equal(t, "guest-1", records[0].GuestID)
		assert.Equal(t, 1, records[0].ImageCount)
	})

	t.Run("Should be idempotent", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)
		require.NoError(t, r.usecase.Join(r.ctx, "guest-1", code))

		require.NoError(t, r.usecase.Leave(r.ctx, "guest-1", code))

		before, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)

		require.NoError(t, r.usecase.Leave(r.ctx, "guest-1", code))

		after, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)

		// Leaving a room that no longer exists is a no-op too.
		require.NoError(t, r.usecase.Leave(r.ctx, "host-1", code))
		require.NoError(t, r.usecase.Leave(r.ctx, "host-1", code))
	})

	t.Run("Should ignore a non-member", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		before, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)

		require.NoError(t, r.usecase.Leave(r.ctx, "stranger", code))

		after, err := r.store.Get(r.ctx, code)
		require.NoError(t, err)
		require.NotNil(t, after)
		assert.Equal(t, before.Version, after.Version)
	})
}

func (s *SessionUnitSuite) TestSubscribe(t provider.T) {
	nextEvent := func(t provider.T, sub usecase_session.Subscription) model.RoomEvent {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed unexpectedly")
			return ev
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for room event")
			return model.RoomEvent{}
		}
	}

	t.Run("Should deliver the initial state and every commit in order", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		sub, err := r.usecase.Subscribe(r.ctx, code)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		initial := nextEvent(t, sub)
		require.NotNil(t, initial.Room)
		assert.Equal(t, model.StatusWaiting, initial.Room.Status)

		require.NoError(t, r.usecase.Join(r.ctx, "guest-1", code))
		joined := nextEvent(t, sub)
		require.NotNil(t, joined.Room)
		assert.Equal(t, model.StatusPlaying, joined.Room.Status)
		assert.Equal(t, "guest-1", joined.Room.GuestID)
		assert.Greater(t, joined.Version, initial.Version)

		require.NoError(t, r.usecase.SendImage(r.ctx, code, "host-1", "img:1"))
		sent := nextEvent(t, sub)
		require.NotNil(t, sent.Room)
		require.NotNil(t, sent.Room.LastImage)
		assert.Equal(t, "img:1", sent.Room.LastImage.ImageRef)
		assert.Equal(t, "guest-1", sent.Room.CurrentTurnID)
		assert.Greater(t, sent.Version, joined.Version)
	})

	t.Run("Should deliver room deletion as a terminal event", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		sub, err := r.usecase.Subscribe(r.ctx, code)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		nextEvent(t, sub)

		require.NoError(t, r.usecase.Leave(r.ctx, "host-1", code))
		gone := nextEvent(t, sub)
		assert.True(t, gone.Deleted)
		assert.Nil(t, gone.Room)
	})

	t.Run("Should tolerate repeated unsubscribes", func(t provider.T) {
		r := initResources()

		code, err := r.usecase.Create(r.ctx, "host-1")
		require.NoError(t, err)

		sub, err := r.usecase.Subscribe(r.ctx, code)
		require.NoError(t, err)

		sub.Unsubscribe()
		sub.Unsubscribe()
	})
}

func TestSessionUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(SessionUnitSuite))
}
