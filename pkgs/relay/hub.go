package relay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/board"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

const (
	MaxRooms    = 1024
	MaxRoomTime = 30 * time.Minute
	// MaxRoomHistory bounds the messages kept for late subscribers of one room
	MaxRoomHistory = 4096
	// subscriberBuffer is the number of live messages a subscriber may lag behind
	subscriberBuffer = 1024
)

var (
	ErrMaxRooms    = errors.New("max number of rooms ongoing, please wait")
	ErrRoomFull    = errors.New("room message history is full")
	ErrRoomMissing = errors.New("room id is empty")
)

// Hub keeps relay rooms in memory. Every room replays its history to new subscribers,
// so participants joining late still see earlier rounds.
type Hub struct {
	Logger *zap.Logger

	mtx      sync.Mutex
	rooms    map[string]*room
	roomTime map[string]time.Time
}

type room struct {
	mtx     sync.Mutex
	history []*wire.Message
	subs    map[uint64]chan *wire.Message
	nextSub uint64
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		Logger:   logger,
		rooms:    make(map[string]*room),
		roomTime: make(map[string]time.Time),
	}
}

func (h *Hub) getRoom(id string) (*room, error) {
	if id == "" {
		return nil, ErrRoomMissing
	}
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if r, ok := h.rooms[id]; ok {
		if time.Now().Before(h.roomTime[id].Add(MaxRoomTime)) {
			return r, nil
		}
		r.close()
		delete(h.rooms, id)
		delete(h.roomTime, id)
	}
	if l := len(h.rooms); l >= MaxRooms {
		if l-h.cleanRooms() >= MaxRooms {
			return nil, ErrMaxRooms
		}
	}
	r := &room{subs: make(map[uint64]chan *wire.Message)}
	h.rooms[id] = r
	h.roomTime[id] = time.Now()
	h.Logger.Debug("🏠 room created", zap.String("room", id))
	return r, nil
}

// cleanRooms removes expired rooms, the caller holds the hub lock
func (h *Hub) cleanRooms() int {
	count := 0
	for id, created := range h.roomTime {
		if time.Now().After(created.Add(MaxRoomTime)) {
			h.rooms[id].close()
			delete(h.rooms, id)
			delete(h.roomTime, id)
			count++
		}
	}
	return count
}

// Rooms returns the number of live rooms.
func (h *Hub) Rooms() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.rooms)
}

// Publish appends msg to the room history and forwards it to the subscribers.
func (h *Hub) Publish(roomID string, msg *wire.Message) error {
	r, err := h.getRoom(roomID)
	if err != nil {
		return err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if len(r.history) >= MaxRoomHistory {
		return ErrRoomFull
	}
	r.history = append(r.history, msg)
	for id, ch := range r.subs {
		select {
		case ch <- msg:
		default:
			h.Logger.Warn("dropping slow subscriber", zap.String("room", roomID), zap.Uint64("subscriber", id))
			close(ch)
			delete(r.subs, id)
		}
	}
	return nil
}

// Subscribe returns a channel that yields the room history followed by live messages,
// and a function ending the subscription.
func (h *Hub) Subscribe(roomID string) (<-chan *wire.Message, func(), error) {
	r, err := h.getRoom(roomID)
	if err != nil {
		return nil, nil, err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	ch := make(chan *wire.Message, len(r.history)+subscriberBuffer)
	for _, msg := range r.history {
		ch <- msg
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mtx.Lock()
			defer r.mtx.Unlock()
			if c, ok := r.subs[id]; ok {
				close(c)
				delete(r.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

func (r *room) close() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
}

// Dial opens an in-process room subscription.
func (h *Hub) Dial(_ context.Context, roomID string) (board.Channel, error) {
	ch, cancel, err := h.Subscribe(roomID)
	if err != nil {
		return nil, err
	}
	return &hubChannel{hub: h, roomID: roomID, incoming: ch, cancel: cancel}, nil
}

type hubChannel struct {
	hub      *Hub
	roomID   string
	incoming <-chan *wire.Message
	cancel   func()
}

func (c *hubChannel) Send(ctx context.Context, msg *wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.hub.Publish(c.roomID, msg)
}

func (c *hubChannel) Incoming() <-chan *wire.Message {
	return c.incoming
}

func (c *hubChannel) Close() error {
	c.cancel()
	return nil
}
