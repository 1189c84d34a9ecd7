// Package signing runs threshold ECDSA signing sessions over a relay room.
//
// The nonce k and the key x are shared additively between the quorum. The products
// k*gamma and k*x are converted from multiplicative to additive shares with Paillier
// encryption under ephemeral per-session keys. The conversion is secure against
// honest-but-curious parties only: no range proofs are exchanged, so a malicious
// participant can learn information about the shares of the others by answering with
// out-of-range values. Partial signatures are verified individually, which makes
// misbehaviour in the last round attributable.
package signing

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
	paillier "github.com/roasbeef/go-go-gadget-paillier"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/board"
	"github.com/ssvlabs/eth-tss/pkgs/crypto"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

const (
	roundCommit uint16 = iota + 1
	roundMultiply
	roundReveal
	roundPartial
)

var commitDomain = []byte("eth-tss/sign/gamma")

var errHashMismatch = errors.New("peer signs a different message hash")

// State of a signing session
type State int

const (
	StateCommit State = iota
	StateCollectCommits
	StateMultiply
	StateCollectMultiply
	StateReveal
	StateCollectReveals
	StatePartialSign
	StateCollectPartials
	StateCombine
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCommit:
		return "Commit"
	case StateCollectCommits:
		return "CollectCommits"
	case StateMultiply:
		return "Multiply"
	case StateCollectMultiply:
		return "CollectMultiply"
	case StateReveal:
		return "Reveal"
	case StateCollectReveals:
		return "CollectReveals"
	case StatePartialSign:
		return "PartialSign"
	case StateCollectPartials:
		return "CollectPartials"
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

// Params of a signing invocation. Quorum lists the participants taking part, the
// local participant (Key.Index) included.
type Params struct {
	RoomID  string
	Quorum  []uint16
	Hash    []byte
	Key     *wire.KeyShare
	Timeout time.Duration
}

// Validate checks the invocation before any network activity.
func (p Params) Validate() error {
	if p.RoomID == "" {
		return wire.NewError(wire.KindInvalidInput, errors.New("empty room id"))
	}
	if len(p.Hash) != 32 {
		return wire.NewError(wire.KindInvalidInput, errors.Errorf("message hash must be 32 bytes, got %d", len(p.Hash)))
	}
	if p.Key == nil {
		return wire.NewError(wire.KindInvalidInput, errors.New("missing key share"))
	}
	if err := p.Key.Validate(); err != nil {
		return err
	}
	seen := make(map[uint16]struct{}, len(p.Quorum))
	for _, id := range p.Quorum {
		if _, ok := seen[id]; ok {
			return wire.NewError(wire.KindInvalidInput, errors.Errorf("duplicate participant %d in quorum", id))
		}
		if _, ok := p.Key.PublicShares[id]; !ok {
			return wire.NewError(wire.KindInvalidInput, errors.Errorf("participant %d did not take part in keygen", id))
		}
		seen[id] = struct{}{}
	}
	if _, ok := seen[p.Key.Index]; !ok {
		return wire.NewError(wire.KindInvalidInput, errors.Errorf("quorum does not include own index %d", p.Key.Index))
	}
	if len(p.Quorum) < p.Key.Scheme.Quorum() {
		return wire.NewError(wire.KindInsufficientQuorum,
			errors.Errorf("quorum of %d participants, need at least %d", len(p.Quorum), p.Key.Scheme.Quorum()))
	}
	return nil
}

type Option func(*LocalSigner)

func WithLogger(logger *zap.Logger) Option {
	return func(o *LocalSigner) {
		o.Logger = logger
	}
}

// WithPaillierBits sets the modulus size of the session Paillier key.
func WithPaillierBits(bits int) Option {
	return func(o *LocalSigner) {
		o.paillierBits = bits
	}
}

func WithRandom(r io.Reader) Option {
	return func(o *LocalSigner) {
		o.rand = r
	}
}

type peerState struct {
	noncePoint *crypto.Point
	commitment []byte
	encNonce   []byte
	paillier   *paillier.PublicKey
	gammaPoint *crypto.Point
	sigmaPoint *crypto.Point
	// additive shares kept from answering the peer's encrypted nonce
	beta *crypto.Scalar
	nu   *crypto.Scalar
}

// LocalSigner holds the state of one quorum member through a signing session.
type LocalSigner struct {
	Logger       *zap.Logger
	params       Params
	state        State
	board        *board.Board
	rand         io.Reader
	paillierBits int

	self   uint16
	quorum []uint16
	m      *crypto.Scalar
	w      *crypto.Scalar

	k, gamma     *crypto.Scalar
	blind        []byte
	paillier     *crypto.PaillierKey
	delta, sigma *crypto.Scalar
	r            *crypto.Scalar
	partials     map[uint16]*crypto.Scalar
	peers        map[uint16]*peerState

	// tamperPartial lets tests play a cheating signer
	tamperPartial func(s *crypto.Scalar) *crypto.Scalar
}

// New creates the local signer of a session. The session starts with Run.
func New(params Params, opts ...Option) *LocalSigner {
	o := &LocalSigner{
		Logger:       zap.NewNop(),
		params:       params,
		state:        StateCommit,
		rand:         rand.Reader,
		paillierBits: crypto.DefaultPaillierBits,
		peers:        make(map[uint16]*peerState),
		partials:     make(map[uint16]*crypto.Scalar),
	}
	for _, opt := range opts {
		opt(o)
	}
	fields := []zap.Field{zap.String("room", params.RoomID)}
	if params.Key != nil {
		fields = append(fields, zap.Uint16("index", params.Key.Index))
	}
	o.Logger = o.Logger.With(fields...)
	return o
}

func (o *LocalSigner) State() State {
	return o.state
}

// Run joins the signing session in the relay room and blocks until the quorum has
// produced a signature of Hash, or the session fails.
func Run(ctx context.Context, dialer board.Dialer, params Params, opts ...Option) (*wire.Signature, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return New(params, opts...).Run(ctx, dialer)
}

func (o *LocalSigner) Run(ctx context.Context, dialer board.Dialer) (*wire.Signature, error) {
	if err := o.params.Validate(); err != nil {
		return nil, err
	}
	if err := o.prepare(); err != nil {
		return nil, wire.AsError(err)
	}
	peers := make([]uint16, 0, len(o.peers))
	for id := range o.peers {
		peers = append(peers, id)
	}
	b, err := board.Open(ctx, dialer, board.Options{
		RoomID:    o.params.RoomID,
		Protocol:  wire.ProtocolSign,
		Self:      o.self,
		Peers:     peers,
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

	o.Logger.Info("🚀 Starting signing", zap.Uint16s("quorum", o.quorum))
	for {
		var err error
		switch o.state {
		case StateCommit:
			err = o.commit(ctx)
		case StateCollectCommits:
			err = o.collectCommits(ctx)
		case StateMultiply:
			err = o.multiply(ctx)
		case StateCollectMultiply:
			err = o.collectMultiply(ctx)
		case StateReveal:
			err = o.reveal(ctx)
		case StateCollectReveals:
			err = o.collectReveals(ctx)
		case StatePartialSign:
			err = o.partialSign(ctx)
		case StateCollectPartials:
			err = o.collectPartials(ctx)
		case StateCombine:
			var sig *wire.Signature
			sig, err = o.combine()
			if err == nil {
				o.state = StateCompleted
				o.Logger.Info("✅ Signing finished successfully")
				return sig, nil
			}
		default:
			err = errors.Errorf("unexpected state %s", o.state)
		}
		if err != nil {
			o.Logger.Error("😥 Signing aborted", zap.Stringer("state", o.state), zap.Error(err))
			o.state = StateAborted
			return nil, wire.AsError(err)
		}
	}
}

// prepare computes the Lagrange weighted key shares of the quorum
func (o *LocalSigner) prepare() error {
	key := o.params.Key
	o.self = key.Index
	o.quorum = append([]uint16(nil), o.params.Quorum...)
	sort.Slice(o.quorum, func(i, j int) bool { return o.quorum[i] < o.quorum[j] })
	o.m = new(crypto.Scalar)
	o.m.SetByteSlice(o.params.Hash)
	// the weighted public shares W_j = lambda_j * X_j sum to the public key
	sum := crypto.Identity()
	for _, id := range o.quorum {
		l, err := crypto.LagrangeCoefficient(id, o.quorum)
		if err != nil {
			return wire.NewError(wire.KindInvalidInput, err)
		}
		sum = sum.Add(key.PublicShares[id].Mul(l))
		if id == o.self {
			o.w = new(crypto.Scalar).Mul2(l, key.Share)
			continue
		}
		o.peers[id] = &peerState{}
	}
	if !sum.Equal(key.PublicKey) {
		return wire.NewError(wire.KindInvalidInput, errors.New("quorum shares do not interpolate to the public key"))
	}
	return nil
}

func (o *LocalSigner) sortedPeers() []uint16 {
	ids := make([]uint16, 0, len(o.peers))
	for _, id := range o.quorum {
		if id != o.self {
			ids = append(ids, id)
		}
	}
	return ids
}

func (o *LocalSigner) commitParts(index uint16, gammaPoint []byte) [][]byte {
	return [][]byte{commitDomain, []byte(o.params.RoomID), []byte(o.board.Session()), o.params.Hash, binary.BigEndian.AppendUint16(nil, index), gammaPoint}
}

func (o *LocalSigner) commit(ctx context.Context) error {
	var err error
	if o.k, err = crypto.RandomScalar(o.rand); err != nil {
		return err
	}
	if o.gamma, err = crypto.RandomScalar(o.rand); err != nil {
		return err
	}
	commitment, blind, err := crypto.Commit(o.rand, o.commitParts(o.self, crypto.BaseMul(o.gamma).Bytes())...)
	if err != nil {
		return err
	}
	o.blind = blind
	if o.paillier, err = crypto.GeneratePaillierKey(o.rand, o.paillierBits); err != nil {
		return err
	}
	encNonce, err := o.paillier.EncryptScalar(o.k)
	if err != nil {
		return err
	}
	msg := &wire.SignCommit{
		NoncePoint:     crypto.BaseMul(o.k).Bytes(),
		Commitment:     commitment,
		PaillierKey:    o.paillier.PublicBytes(),
		EncryptedNonce: encNonce,
		Hash:           o.params.Hash,
	}
	if err := o.board.Broadcast(ctx, roundCommit, wire.SignCommitMessageType, msg); err != nil {
		return err
	}
	o.state = StateCollectCommits
	return nil
}

func (o *LocalSigner) collectCommits(ctx context.Context) error {
	msgs, err := o.board.ReceiveAll(ctx, roundCommit)
	if err != nil {
		return err
	}
	var culprits, disagreeing []uint16
	for _, from := range o.sortedPeers() {
		err := o.parseCommit(o.peers[from], msgs[from])
		switch {
		case errors.Is(err, errHashMismatch):
			o.Logger.Warn("message hash disagreement", zap.Uint16("from", from))
			disagreeing = append(disagreeing, from)
		case err != nil:
			o.Logger.Warn("invalid nonce commitment", zap.Uint16("from", from), zap.Error(err))
			culprits = append(culprits, from)
		}
	}
	if len(disagreeing) > 0 {
		return wire.NewError(wire.KindInvalidInput, errors.New("quorum members sign different message hashes"), disagreeing...)
	}
	if len(culprits) > 0 {
		return wire.NewError(wire.KindInvalidPartialSignature, errors.New("invalid nonce commitments"), culprits...)
	}
	o.state = StateMultiply
	return nil
}

func (o *LocalSigner) parseCommit(peer *peerState, msg *wire.Message) error {
	if msg.Type != wire.SignCommitMessageType {
		return errors.Errorf("unexpected message type %s", msg.Type)
	}
	c := &wire.SignCommit{}
	if err := wire.Decode(msg.Data, c); err != nil {
		return err
	}
	if !bytes.Equal(c.Hash, o.params.Hash) {
		return errHashMismatch
	}
	noncePoint, err := crypto.PointFromBytes(c.NoncePoint)
	if err != nil {
		return err
	}
	if len(c.Commitment) != 32 {
		return errors.Errorf("invalid commitment length %d", len(c.Commitment))
	}
	pk, err := crypto.ParsePaillierPublicKey(c.PaillierKey)
	if err != nil {
		return err
	}
	peer.noncePoint = noncePoint
	peer.commitment = c.Commitment
	peer.paillier = pk
	peer.encNonce = c.EncryptedNonce
	return nil
}

func (o *LocalSigner) multiply(ctx context.Context) error {
	payloads := make(map[uint16]any, len(o.peers))
	for _, id := range o.sortedPeers() {
		peer := o.peers[id]
		gammaCt, beta, err := crypto.MtARespond(o.rand, peer.paillier, peer.encNonce, o.gamma)
		if err != nil {
			return wire.NewError(wire.KindInvalidPartialSignature, errors.Wrap(err, "invalid encrypted nonce"), id)
		}
		keyCt, nu, err := crypto.MtARespond(o.rand, peer.paillier, peer.encNonce, o.w)
		if err != nil {
			return wire.NewError(wire.KindInvalidPartialSignature, errors.Wrap(err, "invalid encrypted nonce"), id)
		}
		peer.beta, peer.nu = beta, nu
		payloads[id] = &wire.SignMtA{GammaCiphertext: gammaCt, KeyCiphertext: keyCt}
	}
	if err := o.board.SendEach(ctx, roundMultiply, wire.SignMtAMessageType, payloads); err != nil {
		return err
	}
	o.state = StateCollectMultiply
	return nil
}

func (o *LocalSigner) collectMultiply(ctx context.Context) error {
	msgs, err := o.board.ReceiveAll(ctx, roundMultiply)
	if err != nil {
		return err
	}
	delta := new(crypto.Scalar).Mul2(o.k, o.gamma)
	sigma := new(crypto.Scalar).Mul2(o.k, o.w)
	var culprits []uint16
	for _, from := range o.sortedPeers() {
		alpha, mu, err := o.parseMtA(msgs[from])
		if err != nil {
			o.Logger.Warn("invalid MtA answer", zap.Uint16("from", from), zap.Error(err))
			culprits = append(culprits, from)
			continue
		}
		peer := o.peers[from]
		delta.Add(alpha).Add(peer.beta)
		sigma.Add(mu).Add(peer.nu)
	}
	if len(culprits) > 0 {
		return wire.NewError(wire.KindInvalidPartialSignature, errors.New("invalid MtA answers"), culprits...)
	}
	o.delta, o.sigma = delta, sigma
	o.state = StateReveal
	return nil
}

func (o *LocalSigner) parseMtA(msg *wire.Message) (alpha, mu *crypto.Scalar, err error) {
	if msg.Type != wire.SignMtAMessageType {
		return nil, nil, errors.Errorf("unexpected message type %s", msg.Type)
	}
	m := &wire.SignMtA{}
	if err := wire.Decode(msg.Data, m); err != nil {
		return nil, nil, err
	}
	if alpha, err = o.paillier.DecryptScalar(m.GammaCiphertext); err != nil {
		return nil, nil, err
	}
	if mu, err = o.paillier.DecryptScalar(m.KeyCiphertext); err != nil {
		return nil, nil, err
	}
	return alpha, mu, nil
}

func (o *LocalSigner) reveal(ctx context.Context) error {
	msg := &wire.SignReveal{
		Delta:      crypto.ScalarBytes(o.delta),
		GammaPoint: crypto.BaseMul(o.gamma).Bytes(),
		Blind:      o.blind,
		SigmaPoint: crypto.BaseMul(o.sigma).Bytes(),
	}
	if err := o.board.Broadcast(ctx, roundReveal, wire.SignRevealMessageType, msg); err != nil {
		return err
	}
	o.state = StateCollectReveals
	return nil
}

func (o *LocalSigner) collectReveals(ctx context.Context) error {
	msgs, err := o.board.ReceiveAll(ctx, roundReveal)
	if err != nil {
		return err
	}
	delta := new(crypto.Scalar).Set(o.delta)
	gammaSum := crypto.BaseMul(o.gamma)
	var culprits []uint16
	for _, from := range o.sortedPeers() {
		peer := o.peers[from]
		d, err := o.parseReveal(from, peer, msgs[from])
		if err != nil {
			o.Logger.Warn("invalid reveal", zap.Uint16("from", from), zap.Error(err))
			culprits = append(culprits, from)
			continue
		}
		delta.Add(d)
		gammaSum = gammaSum.Add(peer.gammaPoint)
	}
	if len(culprits) > 0 {
		return wire.NewError(wire.KindInvalidPartialSignature, errors.New("invalid nonce reveals"), culprits...)
	}
	if delta.IsZero() {
		return wire.NewError(wire.KindProtocolFailure, errors.New("nonce product is zero"))
	}
	// R = (k*gamma)^-1 * gamma*G = k^-1 * G
	R := gammaSum.Mul(new(crypto.Scalar).InverseValNonConst(delta))
	if R.IsIdentity() {
		return wire.NewError(wire.KindProtocolFailure, errors.New("nonce point is the identity"))
	}
	o.r = R.XScalar()
	if o.r.IsZero() {
		return wire.NewError(wire.KindProtocolFailure, errors.New("signature r is zero"))
	}
	o.state = StatePartialSign
	return nil
}

func (o *LocalSigner) parseReveal(from uint16, peer *peerState, msg *wire.Message) (*crypto.Scalar, error) {
	if msg.Type != wire.SignRevealMessageType {
		return nil, errors.Errorf("unexpected message type %s", msg.Type)
	}
	rv := &wire.SignReveal{}
	if err := wire.Decode(msg.Data, rv); err != nil {
		return nil, err
	}
	if !crypto.VerifyCommitment(peer.commitment, rv.Blind, o.commitParts(from, rv.GammaPoint)...) {
		return nil, errors.New("gamma point does not open the commitment")
	}
	gammaPoint, err := crypto.PointFromBytes(rv.GammaPoint)
	if err != nil {
		return nil, err
	}
	sigmaPoint, err := crypto.PointFromBytes(rv.SigmaPoint)
	if err != nil {
		return nil, err
	}
	d, err := crypto.ScalarFromBytes(rv.Delta)
	if err != nil {
		return nil, err
	}
	peer.gammaPoint = gammaPoint
	peer.sigmaPoint = sigmaPoint
	return d, nil
}

func (o *LocalSigner) partialSign(ctx context.Context) error {
	// s_i = m*k_i + r*sigma_i
	s := new(crypto.Scalar).Mul2(o.m, o.k)
	s.Add(new(crypto.Scalar).Mul2(o.r, o.sigma))
	o.partials[o.self] = s
	published := s
	if o.tamperPartial != nil {
		published = o.tamperPartial(new(crypto.Scalar).Set(s))
	}
	msg := &wire.SignPartial{S: crypto.ScalarBytes(published)}
	if err := o.board.Broadcast(ctx, roundPartial, wire.SignPartialMessageType, msg); err != nil {
		return err
	}
	o.state = StateCollectPartials
	return nil
}

func (o *LocalSigner) collectPartials(ctx context.Context) error {
	msgs, err := o.board.ReceiveAll(ctx, roundPartial)
	if err != nil {
		return err
	}
	var culprits []uint16
	for _, from := range o.sortedPeers() {
		s, err := o.parsePartial(o.peers[from], msgs[from])
		if err != nil {
			o.Logger.Warn("invalid partial signature", zap.Uint16("from", from), zap.Error(err))
			culprits = append(culprits, from)
			continue
		}
		o.partials[from] = s
	}
	if len(culprits) > 0 {
		return wire.NewError(wire.KindInvalidPartialSignature, errors.New("partial signatures do not verify"), culprits...)
	}
	o.state = StateCombine
	return nil
}

// parsePartial checks s_j*G == m*K_j + r*Sigma_j
func (o *LocalSigner) parsePartial(peer *peerState, msg *wire.Message) (*crypto.Scalar, error) {
	if msg.Type != wire.SignPartialMessageType {
		return nil, errors.Errorf("unexpected message type %s", msg.Type)
	}
	p := &wire.SignPartial{}
	if err := wire.Decode(msg.Data, p); err != nil {
		return nil, err
	}
	s, err := crypto.ScalarFromBytes(p.S)
	if err != nil {
		return nil, err
	}
	expected := peer.noncePoint.Mul(o.m).Add(peer.sigmaPoint.Mul(o.r))
	if !crypto.BaseMul(s).Equal(expected) {
		return nil, errors.New("partial signature does not match the nonce and key commitments")
	}
	return s, nil
}

func (o *LocalSigner) combine() (*wire.Signature, error) {
	s := new(crypto.Scalar)
	for _, id := range o.quorum {
		s.Add(o.partials[id])
	}
	if s.IsZero() {
		return nil, wire.NewError(wire.KindProtocolFailure, errors.New("signature s is zero"))
	}
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	pub, err := o.params.Key.PublicKey.PublicKey()
	if err != nil {
		return nil, wire.NewError(wire.KindProtocolFailure, err)
	}
	if !ecdsa.NewSignature(o.r, s).Verify(o.params.Hash, pub) {
		return nil, wire.NewError(wire.KindProtocolFailure, errors.New("combined signature does not verify"))
	}
	sig := &wire.Signature{R: o.r.Bytes(), S: s.Bytes()}
	for recid := uint8(0); recid < 2; recid++ {
		sig.RecoveryID = recid
		compact := make([]byte, 0, 65)
		compact = append(compact, 27+recid)
		compact = append(compact, sig.R[:]...)
		compact = append(compact, sig.S[:]...)
		recovered, _, err := ecdsa.RecoverCompact(compact, o.params.Hash)
		if err == nil && recovered.IsEqual(pub) {
			return sig, nil
		}
	}
	return nil, wire.NewError(wire.KindProtocolFailure, errors.New("no recovery id yields the public key"))
}

func (o *LocalSigner) zeroize() {
	for _, s := range []*crypto.Scalar{o.k, o.gamma, o.w, o.delta, o.sigma} {
		if s != nil {
			s.Zero()
		}
	}
}
