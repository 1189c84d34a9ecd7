package dkg

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/board"
	"github.com/ssvlabs/eth-tss/pkgs/crypto"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

const (
	roundCommit uint16 = 1
	roundShare  uint16 = 2
)

var proofDomain = []byte("eth-tss/keygen/pok")

// State of a keygen session
type State int

const (
	StateCommit State = iota
	StateCollectCommitments
	StateShare
	StateCollectShares
	StateCombine
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCommit:
		return "Commit"
	case StateCollectCommitments:
		return "CollectCommitments"
	case StateShare:
		return "Share"
	case StateCollectShares:
		return "CollectShares"
	case StateCombine:
		return "Combine"
	case StateCompleted:
		return "Completed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Params of a keygen invocation. T is the number of parties the key tolerates missing,
// any T+1 of the N participants can sign.
type Params struct {
	RoomID  string
	Index   uint16
	N       uint16
	T       uint16
	Timeout time.Duration
}

func (p Params) Scheme() wire.Scheme {
	return wire.Scheme{N: p.N, T: p.T}
}

func (p Params) Validate() error {
	if p.RoomID == "" {
		return wire.NewError(wire.KindInvalidInput, errors.New("empty room id"))
	}
	if err := p.Scheme().Validate(); err != nil {
		return err
	}
	if p.Index < 1 || p.Index > p.N {
		return wire.NewError(wire.KindInvalidInput, errors.Errorf("participant index %d out of range [1, %d]", p.Index, p.N))
	}
	return nil
}

type Option func(*LocalParty)

func WithLogger(logger *zap.Logger) Option {
	return func(o *LocalParty) {
		o.Logger = logger
	}
}

// WithRandom replaces the randomness source of the session secrets.
func WithRandom(r io.Reader) Option {
	return func(o *LocalParty) {
		o.rand = r
	}
}

// LocalParty holds the state of one participant through a keygen session.
type LocalParty struct {
	Logger *zap.Logger
	params Params
	scheme wire.Scheme
	state  State
	board  *board.Board
	rand   io.Reader

	poly   *crypto.Polynomial
	encKey *crypto.EncryptionKey
	// commitments and encryption keys of every participant, own included
	commitments map[uint16][]*crypto.Point
	encKeys     map[uint16][]byte
	// shares received from every dealer, own included
	shares map[uint16]*crypto.Scalar

	// tamperShare lets tests play a cheating dealer
	tamperShare func(to uint16, share *crypto.Scalar) *crypto.Scalar
}

// New creates the local participant of a keygen session. The session starts with Run.
func New(params Params, opts ...Option) *LocalParty {
	o := &LocalParty{
		Logger:      zap.NewNop(),
		params:      params,
		scheme:      params.Scheme(),
		state:       StateCommit,
		rand:        rand.Reader,
		commitments: make(map[uint16][]*crypto.Point),
		encKeys:     make(map[uint16][]byte),
		shares:      make(map[uint16]*crypto.Scalar),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.Logger = o.Logger.With(zap.String("room", params.RoomID), zap.Uint16("index", params.Index))
	return o
}

func (o *LocalParty) State() State {
	return o.state
}

// Run joins the keygen session in the relay room and blocks until every participant
// holds its share of the new key, or the session fails.
func Run(ctx context.Context, dialer board.Dialer, params Params, opts ...Option) (*wire.KeyShare, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return New(params, opts...).Run(ctx, dialer)
}

func (o *LocalParty) Run(ctx context.Context, dialer board.Dialer) (*wire.KeyShare, error) {
	if err := o.params.Validate(); err != nil {
		return nil, err
	}
	b, err := board.Open(ctx, dialer, board.Options{
		RoomID:    o.params.RoomID,
		Protocol:  wire.ProtocolKeygen,
		Self:      o.params.Index,
		Peers:     o.peers(),
		Timeout:   o.params.Timeout,
		Logger:    o.Logger,
		Handshake: true,
	})
	if err != nil {
		return nil, err
	}
	defer b.Close()
	o.board = b
	defer o.zeroize()

	o.Logger.Info("🚀 Starting keygen", zap.Uint16("n", o.scheme.N), zap.Uint16("t", o.scheme.T))
	for {
		var err error
		switch o.state {
		case StateCommit:
			err = o.commit(ctx)
		case StateCollectCommitments:
			err = o.collectCommitments(ctx)
		case StateShare:
			err = o.share(ctx)
		case StateCollectShares:
			err = o.collectShares(ctx)
		case StateCombine:
			var ks *wire.KeyShare
			ks, err = o.combine()
			if err == nil {
				o.state = StateCompleted
				o.Logger.Info("✅ Keygen finished successfully", zap.String("public_key", ks.PublicKey.String()))
				return ks, nil
			}
		default:
			err = errors.Errorf("unexpected state %s", o.state)
		}
		if err != nil {
			o.Logger.Error("😥 Keygen aborted", zap.Stringer("state", o.state), zap.Error(err))
			o.state = StateAborted
			return nil, wire.AsError(err)
		}
	}
}

func (o *LocalParty) peers() []uint16 {
	peers := make([]uint16, 0, o.scheme.N-1)
	for _, id := range o.scheme.Indexes() {
		if id != o.params.Index {
			peers = append(peers, id)
		}
	}
	return peers
}

// proofContext binds the proof of knowledge of a dealer secret to the room and dealer
func (o *LocalParty) proofContext(dealer uint16) []byte {
	return crypto.HashParts(proofDomain, []byte(o.params.RoomID), []byte(o.board.Session()), binary.BigEndian.AppendUint16(nil, dealer))
}

func (o *LocalParty) commit(ctx context.Context) error {
	poly, err := crypto.NewRandomPolynomial(o.rand, int(o.scheme.T))
	if err != nil {
		return err
	}
	o.poly = poly
	commits := poly.Commit()
	proof, err := crypto.ProveKnowledge(o.rand, poly.Secret(), commits[0], o.proofContext(o.params.Index))
	if err != nil {
		return err
	}
	o.encKey, err = crypto.GenerateEncryptionKey()
	if err != nil {
		return err
	}
	o.commitments[o.params.Index] = commits
	o.encKeys[o.params.Index] = o.encKey.PublicBytes()

	msg := &wire.DKGCommit{
		Commitments:   encodePoints(commits),
		Proof:         proof.Bytes(),
		EncryptionKey: o.encKey.PublicBytes(),
	}
	if err := o.board.Broadcast(ctx, roundCommit, wire.DKGCommitMessageType, msg); err != nil {
		return err
	}
	o.state = StateCollectCommitments
	return nil
}

func (o *LocalParty) collectCommitments(ctx context.Context) error {
	msgs, err := o.board.ReceiveAll(ctx, roundCommit)
	if err != nil {
		return err
	}
	var culprits []uint16
	for _, from := range sortedKeys(msgs) {
		commits, encKey, err := o.parseCommit(from, msgs[from])
		if err != nil {
			o.Logger.Warn("invalid commitment", zap.Uint16("from", from), zap.Error(err))
			culprits = append(culprits, from)
			continue
		}
		o.commitments[from] = commits
		o.encKeys[from] = encKey
	}
	if len(culprits) > 0 {
		return wire.NewError(wire.KindInvalidShare, errors.New("invalid dealer commitments"), culprits...)
	}
	o.state = StateShare
	return nil
}

func (o *LocalParty) parseCommit(from uint16, msg *wire.Message) ([]*crypto.Point, []byte, error) {
	if msg.Type != wire.DKGCommitMessageType {
		return nil, nil, errors.Errorf("unexpected message type %s", msg.Type)
	}
	c := &wire.DKGCommit{}
	if err := wire.Decode(msg.Data, c); err != nil {
		return nil, nil, err
	}
	if len(c.Commitments) != int(o.scheme.T)+1 {
		return nil, nil, errors.Errorf("expected %d commitments, got %d", o.scheme.T+1, len(c.Commitments))
	}
	commits, err := decodePoints(c.Commitments)
	if err != nil {
		return nil, nil, err
	}
	proof, err := crypto.ParseSchnorrProof(c.Proof)
	if err != nil {
		return nil, nil, err
	}
	if !proof.Verify(commits[0], o.proofContext(from)) {
		return nil, nil, errors.New("invalid proof of knowledge of the dealer secret")
	}
	if err := crypto.ValidateEncryptionKey(c.EncryptionKey); err != nil {
		return nil, nil, err
	}
	return commits, c.EncryptionKey, nil
}

func (o *LocalParty) share(ctx context.Context) error {
	payloads := make(map[uint16]any, o.scheme.N-1)
	for _, to := range o.scheme.Indexes() {
		s := o.poly.Evaluate(to)
		if to == o.params.Index {
			o.shares[to] = s
			continue
		}
		if o.tamperShare != nil {
			s = o.tamperShare(to, s)
		}
		ct, err := crypto.Encrypt(o.encKeys[to], crypto.ScalarBytes(s))
		s.Zero()
		if err != nil {
			return wire.NewError(wire.KindInvalidShare, errors.Wrap(err, "failed to encrypt share"), to)
		}
		payloads[to] = &wire.DKGShare{EncryptedShare: ct}
	}
	if err := o.board.SendEach(ctx, roundShare, wire.DKGShareMessageType, payloads); err != nil {
		return err
	}
	o.state = StateCollectShares
	return nil
}

func (o *LocalParty) collectShares(ctx context.Context) error {
	msgs, err := o.board.ReceiveAll(ctx, roundShare)
	if err != nil {
		return err
	}
	var culprits []uint16
	for _, from := range sortedKeys(msgs) {
		s, err := o.parseShare(from, msgs[from])
		if err != nil {
			o.Logger.Warn("invalid share", zap.Uint16("from", from), zap.Error(err))
			culprits = append(culprits, from)
			continue
		}
		o.shares[from] = s
	}
	if len(culprits) > 0 {
		return wire.NewError(wire.KindInvalidShare, errors.New("shares do not match the dealer commitments"), culprits...)
	}
	o.state = StateCombine
	return nil
}

func (o *LocalParty) parseShare(from uint16, msg *wire.Message) (*crypto.Scalar, error) {
	if msg.Type != wire.DKGShareMessageType {
		return nil, errors.Errorf("unexpected message type %s", msg.Type)
	}
	d := &wire.DKGShare{}
	if err := wire.Decode(msg.Data, d); err != nil {
		return nil, err
	}
	plain, err := o.encKey.Decrypt(d.EncryptedShare)
	if err != nil {
		return nil, err
	}
	s, err := crypto.ScalarFromBytes(plain)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyShare(s, o.commitments[from], o.params.Index) {
		return nil, errors.New("share does not match the commitments")
	}
	return s, nil
}

func (o *LocalParty) combine() (*wire.KeyShare, error) {
	ids := o.scheme.Indexes()
	pk := crypto.Identity()
	share := new(crypto.Scalar)
	for _, j := range ids {
		pk = pk.Add(o.commitments[j][0])
		share.Add(o.shares[j])
	}
	publicShares := make(map[uint16]*crypto.Point, len(ids))
	for _, k := range ids {
		X := crypto.Identity()
		for _, j := range ids {
			X = X.Add(crypto.EvaluateCommitments(o.commitments[j], k))
		}
		publicShares[k] = X
	}
	if pk.IsIdentity() {
		return nil, wire.NewError(wire.KindProtocolFailure, errors.New("aggregated public key is the identity"))
	}
	if !crypto.BaseMul(share).Equal(publicShares[o.params.Index]) {
		return nil, wire.NewError(wire.KindProtocolFailure, errors.New("secret share does not match the public share"))
	}
	ks := &wire.KeyShare{
		Version:      wire.KeyShareVersion,
		RoomID:       o.params.RoomID,
		Scheme:       o.scheme,
		Index:        o.params.Index,
		Share:        share,
		PublicShares: publicShares,
		PublicKey:    pk,
	}
	if err := ks.Validate(); err != nil {
		return nil, wire.NewError(wire.KindProtocolFailure, err)
	}
	return ks, nil
}

func (o *LocalParty) zeroize() {
	if o.poly != nil {
		o.poly.Zeroize()
	}
	for _, s := range o.shares {
		s.Zero()
	}
}

func encodePoints(points []*crypto.Point) []hexutil.Bytes {
	res := make([]hexutil.Bytes, len(points))
	for i, p := range points {
		res[i] = p.Bytes()
	}
	return res
}

func decodePoints(raw []hexutil.Bytes) ([]*crypto.Point, error) {
	res := make([]*crypto.Point, len(raw))
	for i, b := range raw {
		p, err := crypto.PointFromBytes(b)
		if err != nil {
			return nil, err
		}
		res[i] = p
	}
	return res, nil
}

func sortedKeys[T any](m map[uint16]T) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
