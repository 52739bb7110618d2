package usecase_session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/picswap/core/internal/model"
)

var (
	ErrCodeCollision    = errors.New("room code collision")
	ErrRoomCreateFailed = errors.New("failed to create room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room full")
	ErrRoomEnded        = errors.New("room ended")
	ErrRoomNotPlaying   = errors.New("room not playing")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrStoreUnavailable = errors.New("room store unavailable")
)

// TxFunc receives the current room document, nil when absent, and returns
// the document to commit: a new value writes it, nil deletes the room, and
// returning current unchanged commits nothing. Any error aborts the
// transaction with the store untouched.
type TxFunc func(current *model.Room) (*model.Room, error)

type Subscription interface {
	// Events yields the current state first, then every later committed
	// mutation, in commit order. The channel closes after Unsubscribe.
	Events() <-chan model.RoomEvent
	// Unsubscribe tears the listener down. Safe to call more than once.
	Unsubscribe()
}

//go:generate mockery --name=RoomStore --output=./mocks/session/store --filename=store.go
type RoomStore interface {
	Get(ctx context.Context, code string) (*model.Room, error)
	Transaction(ctx context.Context, code string, fn TxFunc) error
	Subscribe(ctx context.Context, code string) (Subscription, error)
}

// PresenceIndex tracks which room a user currently occupies. Best-effort
// hardening; the protocol stays correct without it.
type PresenceIndex interface {
	Track(ctx context.Context, userID, roomCode string) error
	Clear(ctx context.Context, userID string) error
	RoomOf(ctx context.Context, userID string) (string, error)
}

type MatchArchive interface {
	Record(ctx context.Context, m model.MatchRecord) error
}

const createRetries = 5

type Option func(*Usecase)

// WithCodeGenerator overrides the room code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(u *Usecase) {
		u.genCode = gen
	}
}

type Usecase struct {
	store    RoomStore
	presence PresenceIndex
	archive  MatchArchive
	logger   *slog.Logger

	genCode func() string
}

func New(store RoomStore, presence PresenceIndex, archive MatchArchive, opts ...Option) *Usecase {
	u := &Usecase{
		store:    store,
		presence: presence,
		archive:  archive,
		logger:   slog.Default(),
		genCode:  buildRoomCode,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func buildRoomCode() string {
	var builder strings.Builder
	builder.Grow(model.CodeLength)

	for i := 0; i < model.CodeLength; i++ {
		builder.WriteByte(model.CodeAlphabet[rand.Intn(len(model.CodeAlphabet))])
	}

	return builder.String()
}

// Create opens a new room owned by hostID and returns its code.
// Assuming that codes can conflict. Retrying with a fresh code.
func (u *Usecase) Create(ctx context.Context, hostID string) (string, error) {
	u.reconcilePresence(ctx, hostID)

	for i := 0; i < createRetries; i++ {
		code := u.genCode()
		room := &model.Room{
			Code:          code,
			HostID:        hostID,
			Status:        model.StatusWaiting,
			CurrentTurnID: hostID,
			CreatedAt:     time.Now().UTC(),
		}

		err := u.store.Transaction(ctx, code, func(current *model.Room) (*model.Room, error) {
			if current != nil {
				return nil, ErrCodeCollision
			}
			return room, nil
		})
		if err == nil {
			u.trackPresence(ctx, hostID, code)
			return code, nil
		}
		if errors.Is(err, ErrCodeCollision) {
			continue
		}
		return "", errors.Join(ErrStoreUnavailable, err)
	}

	return "", ErrRoomCreateFailed
}

// Join claims the guest slot of the room. The claim is a conditional
// transactional write: it succeeds only if the slot is still vacant at
// apply time, so two racing joins resolve to exactly one winner.
func (u *Usecase) Join(ctx context.Context, guestID, code string) error {
	code = model.NormalizeCode(code)

	err := u.store.Transaction(ctx, code, func(current *model.Room) (*model.Room, error) {
		switch {
		case current == nil:
			return nil, ErrRoomNotFound
		case current.Status == model.StatusEnded:
			return nil, ErrRoomEnded
		case current.HasGuest():
			return nil, ErrRoomFull
		}

		next := current.Clone()
		next.GuestID = guestID
		next.Status = model.StatusPlaying
		if !next.IsMember(next.CurrentTurnID) {
			// A departed guest may still hold the turn; hand it back to
			// the host so the game can resume.
			next.CurrentTurnID = next.HostID
		}
		return next, nil
	})
	if err != nil {
		return u.classify(err)
	}

	u.trackPresence(ctx, guestID, code)
	return nil
}

// SendImage publishes an image handoff and flips the turn to the other
// participant in a single atomic commit. The turn check runs against the
// authoritative document inside the transaction, never against
// client-cached state.
func (u *Usecase) SendImage(ctx context.Context, code, senderID, imageRef string) error {
	code = model.NormalizeCode(code)

	err := u.store.Transaction(ctx, code, func(current *model.Room) (*model.Room, error) {
		switch {
		case current == nil:
			return nil, ErrRoomNotFound
		case current.Status != model.StatusPlaying:
			return nil, ErrRoomNotPlaying
		case current.CurrentTurnID != senderID:
			return nil, ErrNotYourTurn
		}

		next := current.Clone()
		next.LastImage = &model.LastImage{
			SenderID: senderID,
			ImageRef: imageRef,
			SentAt:   time.Now().UTC(),
		}
		next.ImageCount++
		next.CurrentTurnID = current.Other(senderID)
		return next, nil
	})

	return u.classify(err)
}

// Leave removes the participant from the room. Idempotent: a second leave
// for the same participant, or a leave against a missing room, is a no-op.
func (u *Usecase) Leave(ctx context.Context, participantID, code string) error {
	code = model.NormalizeCode(code)

	var record *model.MatchRecord
	err := u.store.Transaction(ctx, code, func(current *model.Room) (*model.Room, error) {
		record = nil
		if current == nil {
			return current, nil
		}

		switch participantID {
		case current.HostID:
			// Host leaving tears the room down; with a guest present the
			// match is over for both and goes to the archive.
			if current.HasGuest() {
				record = &model.MatchRecord{
					Code:       current.Code,
					HostID:     current.HostID,
					GuestID:    current.GuestID,
					ImageCount: current.ImageCount,
					CreatedAt:  current.CreatedAt,
					EndedAt:    time.Now().UTC(),
				}
			}
			return nil, nil
		case current.GuestID:
			next := current.Clone()
			next.GuestID = ""
			next.Status = model.StatusWaiting
			return next, nil
		}

		// Not a member: nothing to do.
		return current, nil
	})
	if err != nil {
		return u.classify(err)
	}

	u.clearPresence(ctx, participantID)
	if record != nil {
		u.recordMatch(ctx, *record)
	}
	return nil
}

// Room returns the current snapshot of the room document.
func (u *Usecase) Room(ctx context.Context, code string) (*model.Room, error) {
	code = model.NormalizeCode(code)

	room, err := u.store.Get(ctx, code)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Subscribe opens a live feed of full-state snapshots for the room.
func (u *Usecase) Subscribe(ctx context.Context, code string) (Subscription, error) {
	code = model.NormalizeCode(code)

	sub, err := u.store.Subscribe(ctx, code)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return sub, nil
}

var protocolErrs = []error{
	ErrCodeCollision,
	ErrRoomNotFound,
	ErrRoomFull,
	ErrRoomEnded,
	ErrRoomNotPlaying,
	ErrNotYourTurn,
}

func (u *Usecase) classify(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range protocolErrs {
		if errors.Is(err, e) {
			return err
		}
	}
	return errors.Join(ErrStoreUnavailable, err)
}

// reconcilePresence leaves any room the user still occupies from a
// previous session before a new one is created.
func (u *Usecase) reconcilePresence(ctx context.Context, userID string) {
	if u.presence == nil {
		return
	}
	stale, err := u.presence.RoomOf(ctx, userID)
	if err != nil {
		u.logger.Warn("presence lookup failed", "user_id", userID, "error", err)
		return
	}
	if stale == "" {
		return
	}
	if err := u.Leave(ctx, userID, stale); err != nil {
		u.logger.Warn("stale room reconciliation failed",
			"user_id", userID,
			"room", stale,
			"error", err)
	}
}

func (u *Usecase) trackPresence(ctx context.Context, userID, code string) {
	if u.presence == nil {
		return
	}
	if err := u.presence.Track(ctx, userID, code); err != nil {
		u.logger.Warn("presence track failed", "user_id", userID, "room", code, "error", err)
	}
}

func (u *Usecase) clearPresence(ctx context.Context, userID string) {
	if u.presence == nil {
		return
	}
	if err := u.presence.Clear(ctx, userID); err != nil {
		u.logger.Warn("presence clear failed", "user_id", userID, "error", err)
	}
}

func (u *Usecase) recordMatch(ctx context.Context, m model.MatchRecord) {
	if u.archive == nil {
		return
	}
	if err := u.archive.Record(ctx, m); err != nil {
		u.logger.Error("match archive failed", "room", m.Code, "error", err)
	}
}
