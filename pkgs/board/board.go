package board

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// DefaultTimeout bounds a whole session when the caller gives no timeout
const DefaultTimeout = 2 * time.Minute

// JoinRound carries the session handshake that precedes the protocol rounds
const JoinRound uint16 = 0

const nonceSize = 32

// Channel is an open subscription to a relay room. Incoming is closed when the
// subscription ends.
type Channel interface {
	Send(ctx context.Context, msg *wire.Message) error
	Incoming() <-chan *wire.Message
	Close() error
}

// Dialer opens room subscriptions on a relay.
type Dialer interface {
	Dial(ctx context.Context, roomID string) (Channel, error)
}

type Options struct {
	RoomID   string
	Protocol wire.Protocol
	Self     uint16
	Peers    []uint16
	// Timeout covers the whole session, starting at Open
	Timeout time.Duration
	Logger  *zap.Logger
	// Handshake makes Open agree on a fresh session id with every peer. Protocol
	// messages tagged with another session, such as those of an earlier session in
	// the same room, are then dropped.
	Handshake bool
}

// Board is the per-session view of a relay room. It collects the messages of one
// round at a time: messages of rounds already collected are discarded, messages of
// later rounds are buffered until their round is awaited.
type Board struct {
	logger   *zap.Logger
	roomID   string
	protocol wire.Protocol
	self     uint16
	peers    map[uint16]struct{}
	ch       Channel

	ctx    context.Context
	cancel context.CancelFunc

	mtx      sync.Mutex
	current  uint16
	rounds   map[uint16]map[uint16]*wire.Message
	notify   chan struct{}
	closed   bool
	pumpDone chan struct{}

	// handshake state, protocol messages wait in pending until the session is known
	joining bool
	session string
	nonces  map[uint16]string
	acks    map[uint16]map[uint16]string
	pending []*wire.Message

	closeOnce sync.Once
}

// Open subscribes to the room and starts the session deadline.
func Open(ctx context.Context, dialer Dialer, opts Options) (*Board, error) {
	if opts.RoomID == "" {
		return nil, wire.NewError(wire.KindInvalidInput, errors.New("empty room id"))
	}
	if opts.Self == 0 {
		return nil, wire.NewError(wire.KindInvalidInput, errors.New("participant index must be positive"))
	}
	peers := make(map[uint16]struct{}, len(opts.Peers))
	for _, p := range opts.Peers {
		if p == 0 || p == opts.Self {
			return nil, wire.NewError(wire.KindInvalidInput, errors.Errorf("invalid peer index %d", p))
		}
		if _, ok := peers[p]; ok {
			return nil, wire.NewError(wire.KindInvalidInput, errors.Errorf("duplicate peer index %d", p))
		}
		peers[p] = struct{}{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("room", opts.RoomID), zap.Uint16("index", opts.Self))

	sessCtx, cancel := context.WithTimeout(ctx, timeout)
	ch, err := dialer.Dial(sessCtx, opts.RoomID)
	if err != nil {
		cancel()
		return nil, wire.NewError(wire.KindTransportUnavailable, errors.Wrap(err, "failed to open relay room"))
	}
	b := &Board{
		logger:   logger,
		roomID:   opts.RoomID,
		protocol: opts.Protocol,
		self:     opts.Self,
		peers:    peers,
		ch:       ch,
		ctx:      sessCtx,
		cancel:   cancel,
		current:  1,
		rounds:   make(map[uint16]map[uint16]*wire.Message),
		notify:   make(chan struct{}),
		pumpDone: make(chan struct{}),
		joining:  opts.Handshake,
		nonces:   make(map[uint16]string),
		acks:     make(map[uint16]map[uint16]string),
	}
	go b.pump()
	if opts.Handshake {
		if err := b.join(sessCtx); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	logger.Debug("🔗 joined relay room", zap.Int("peers", len(peers)), zap.String("session", b.session))
	return b, nil
}

func (b *Board) Self() uint16 {
	return b.self
}

func (b *Board) RoomID() string {
	return b.roomID
}

// Session returns the session id agreed in the handshake, empty without one.
func (b *Board) Session() string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.session
}

// join broadcasts a fresh nonce and acknowledges the latest nonce seen from every
// peer until all peers acknowledged the same nonces, own nonce included. Only a
// peer that saw this session's nonce can acknowledge it, so replayed handshakes of
// earlier sessions never complete one.
func (b *Board) join(ctx context.Context) error {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return wire.NewError(wire.KindProtocolFailure, errors.Wrap(err, "failed to generate session nonce"))
	}
	own := hexutil.Encode(nonce)
	if err := b.send(ctx, wire.Broadcast, JoinRound, wire.JoinMessageType, &wire.Join{Nonce: nonce}); err != nil {
		return err
	}
	var acked map[uint16]string
	for {
		b.mtx.Lock()
		view := b.view(own)
		notify := b.notify
		closed := b.closed
		b.mtx.Unlock()

		if view != nil && !sameNonces(view, acked) {
			ack := &wire.JoinAck{Nonces: make(map[uint16]hexutil.Bytes, len(view))}
			for id, n := range view {
				ack.Nonces[id] = hexutil.MustDecode(n)
			}
			if err := b.send(ctx, wire.Broadcast, JoinRound, wire.JoinAckMessageType, ack); err != nil {
				return err
			}
			acked = view
		}

		b.mtx.Lock()
		missing := b.unconfirmed(acked)
		if len(missing) == 0 {
			b.session = sessionID(acked)
			b.joining = false
			pending := b.pending
			b.pending = nil
			for _, msg := range pending {
				b.accept(msg)
			}
			b.mtx.Unlock()
			return nil
		}
		b.mtx.Unlock()

		if closed && b.ctx.Err() == nil {
			return wire.NewError(wire.KindTransportUnavailable, errors.New("relay subscription closed"), missing...)
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return b.timeout(ctx.Err(), JoinRound, missing)
		}
	}
}

// view returns the latest nonce of every participant, nil until all peers announced
// one. The caller holds the lock.
func (b *Board) view(own string) map[uint16]string {
	view := map[uint16]string{b.self: own}
	for p := range b.peers {
		n, ok := b.nonces[p]
		if !ok {
			return nil
		}
		view[p] = n
	}
	return view
}

// unconfirmed lists the peers that did not acknowledge acked yet. The caller holds
// the lock.
func (b *Board) unconfirmed(acked map[uint16]string) []uint16 {
	var missing []uint16
	for p := range b.peers {
		if acked == nil {
			if _, ok := b.nonces[p]; !ok {
				missing = append(missing, p)
			}
			continue
		}
		if !sameNonces(b.acks[p], acked) {
			missing = append(missing, p)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func sameNonces(a, b map[uint16]string) bool {
	if a == nil || b == nil || len(a) != len(b) {
		return false
	}
	for id, n := range a {
		if b[id] != n {
			return false
		}
	}
	return true
}

func sessionID(nonces map[uint16]string) string {
	ids := make([]uint16, 0, len(nonces))
	for id := range nonces {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	data := make([]byte, 0, len(ids)*(2+nonceSize))
	for _, id := range ids {
		data = binary.BigEndian.AppendUint16(data, id)
		data = append(data, hexutil.MustDecode(nonces[id])...)
	}
	return eth_crypto.Keccak256Hash(data).Hex()
}

func (b *Board) pump() {
	defer close(b.pumpDone)
	defer b.signal(true)
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-b.ch.Incoming():
			if !ok {
				return
			}
			b.deliver(msg)
		}
	}
}

func (b *Board) deliver(msg *wire.Message) {
	if msg == nil || msg.RoomID != b.roomID || msg.Protocol != b.protocol || msg.From == b.self {
		return
	}
	if _, ok := b.peers[msg.From]; !ok {
		b.logger.Debug("dropping message from unknown participant", zap.Uint16("from", msg.From))
		return
	}
	if !msg.IsBroadcast() && msg.To != b.self {
		return
	}
	b.mtx.Lock()
	var accepted bool
	switch {
	case msg.Round == JoinRound:
		accepted = b.joining && b.deliverJoin(msg)
	case b.joining:
		b.pending = append(b.pending, msg)
	default:
		accepted = b.accept(msg)
	}
	b.mtx.Unlock()
	if accepted {
		b.signal(false)
	}
}

// deliverJoin records the latest handshake message of a peer. The caller holds the
// lock.
func (b *Board) deliverJoin(msg *wire.Message) bool {
	if !msg.IsBroadcast() {
		return false
	}
	switch msg.Type {
	case wire.JoinMessageType:
		join := &wire.Join{}
		if err := wire.Decode(msg.Data, join); err != nil || len(join.Nonce) != nonceSize {
			b.logger.Debug("dropping invalid join", zap.Uint16("from", msg.From))
			return false
		}
		b.nonces[msg.From] = hexutil.Encode(join.Nonce)
	case wire.JoinAckMessageType:
		ack := &wire.JoinAck{}
		if err := wire.Decode(msg.Data, ack); err != nil {
			b.logger.Debug("dropping invalid join ack", zap.Uint16("from", msg.From))
			return false
		}
		nonces := make(map[uint16]string, len(ack.Nonces))
		for id, n := range ack.Nonces {
			nonces[id] = hexutil.Encode(n)
		}
		b.acks[msg.From] = nonces
	default:
		return false
	}
	return true
}

// accept files a protocol message under its round. The caller holds the lock.
func (b *Board) accept(msg *wire.Message) bool {
	if msg.Session != b.session {
		b.logger.Debug("discarding message of another session", zap.Uint16("from", msg.From), zap.Uint16("round", msg.Round))
		return false
	}
	if msg.Round < b.current {
		b.logger.Debug("discarding stale message", zap.Uint16("from", msg.From), zap.Uint16("round", msg.Round))
		return false
	}
	round, ok := b.rounds[msg.Round]
	if !ok {
		round = make(map[uint16]*wire.Message)
		b.rounds[msg.Round] = round
	}
	if _, dup := round[msg.From]; dup {
		return false
	}
	round[msg.From] = msg
	return true
}

func (b *Board) signal(closed bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if closed {
		b.closed = true
	}
	close(b.notify)
	b.notify = make(chan struct{})
}

// Broadcast sends payload to every participant of the room.
func (b *Board) Broadcast(ctx context.Context, round uint16, t wire.TransportType, payload any) error {
	return b.send(ctx, wire.Broadcast, round, t, payload)
}

// Send sends payload to a single peer.
func (b *Board) Send(ctx context.Context, to uint16, round uint16, t wire.TransportType, payload any) error {
	if _, ok := b.peers[to]; !ok {
		return wire.NewError(wire.KindInvalidInput, errors.Errorf("%d is not a peer", to))
	}
	return b.send(ctx, to, round, t, payload)
}

// SendEach sends every listed peer its own payload. Sends run concurrently and the
// first failure is returned.
func (b *Board) SendEach(ctx context.Context, round uint16, t wire.TransportType, payloads map[uint16]any) error {
	p := pool.New().WithErrors().WithContext(ctx).WithFirstError()
	for to, payload := range payloads {
		p.Go(func(ctx context.Context) error {
			return b.Send(ctx, to, round, t, payload)
		})
	}
	return p.Wait()
}

func (b *Board) send(ctx context.Context, to, round uint16, t wire.TransportType, payload any) error {
	data, err := wire.Encode(payload)
	if err != nil {
		return wire.NewError(wire.KindInvalidInput, err)
	}
	msg := &wire.Message{
		RoomID:   b.roomID,
		Protocol: b.protocol,
		Session:  b.session,
		From:     b.self,
		To:       to,
		Round:    round,
		Type:     t,
		Data:     data,
	}
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.ch.Send(ctx, msg); err != nil {
		return wire.NewError(wire.KindTransportUnavailable, errors.Wrapf(err, "failed to send %s", t))
	}
	return nil
}

// bound limits ctx by the session deadline
func (b *Board) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, _ := b.ctx.Deadline()
	return context.WithDeadline(ctx, deadline)
}

// ReceiveAll waits for one message of the given round from every peer. Rounds must be
// collected in increasing order. It fails with ParticipantMissing, naming the peers
// that did not answer, once the session deadline passes or ctx is done.
func (b *Board) ReceiveAll(ctx context.Context, round uint16) (map[uint16]*wire.Message, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	for {
		b.mtx.Lock()
		if round < b.current {
			b.mtx.Unlock()
			return nil, wire.NewError(wire.KindInvalidInput, errors.Errorf("round %d already collected", round))
		}
		got := b.rounds[round]
		missing := b.missing(got)
		if len(missing) == 0 {
			res := make(map[uint16]*wire.Message, len(got))
			for from, msg := range got {
				res[from] = msg
			}
			for r := range b.rounds {
				if r <= round {
					delete(b.rounds, r)
				}
			}
			b.current = round + 1
			b.mtx.Unlock()
			b.logger.Debug("✅ collected round", zap.Uint16("round", round))
			return res, nil
		}
		if b.closed && b.ctx.Err() == nil {
			b.mtx.Unlock()
			return nil, wire.NewError(wire.KindTransportUnavailable, errors.New("relay subscription closed"), missing...)
		}
		notify := b.notify
		b.mtx.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, b.timeout(ctx.Err(), round, missing)
		case <-b.ctx.Done():
			return nil, b.timeout(b.ctx.Err(), round, missing)
		}
	}
}

func (b *Board) timeout(cause error, round uint16, missing []uint16) error {
	b.logger.Warn("⏰ participants missing", zap.Uint16("round", round), zap.Uint16s("missing", missing))
	return wire.NewError(wire.KindParticipantMissing, errors.Wrapf(cause, "round %d", round), missing...)
}

func (b *Board) missing(got map[uint16]*wire.Message) []uint16 {
	var missing []uint16
	for p := range b.peers {
		if _, ok := got[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// Close releases the room subscription. It is safe to call more than once.
func (b *Board) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		err = b.ch.Close()
		<-b.pumpDone
		b.mtx.Lock()
		b.rounds = nil
		b.mtx.Unlock()
	})
	return err
}
