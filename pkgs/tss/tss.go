// Package tss is the entry point of the engine: keygen and signing invocations that
// join a session in a relay room, and their JSON outcome.
package tss

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/board"
	"github.com/ssvlabs/eth-tss/pkgs/dkg"
	"github.com/ssvlabs/eth-tss/pkgs/relay"
	"github.com/ssvlabs/eth-tss/pkgs/signing"
	"github.com/ssvlabs/eth-tss/pkgs/utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// KeygenParams describes the local participant of a keygen session.
type KeygenParams struct {
	RoomID                string `json:"roomId"`
	ParticipantIndex      uint16 `json:"participantIndex"`
	ParticipantsCount     uint16 `json:"participantsCount"`
	ParticipantsThreshold uint16 `json:"participantsThreshold"`
	RelayAddress          string `json:"relayAddress"`
	TimeoutSeconds        uint32 `json:"timeoutSeconds"`
}

// SignParams describes the local participant of a signing session. Data is the
// hex encoded 32 byte message hash and Key the JSON key share of the participant.
type SignParams struct {
	RoomID              string   `json:"roomId"`
	ParticipantsIndexes []uint16 `json:"participantsIndexes"`
	Data                string   `json:"data"`
	Key                 string   `json:"key"`
	RelayAddress        string   `json:"relayAddress"`
	TimeoutSeconds      uint32   `json:"timeoutSeconds"`
}

// Outcome carries either the result of an invocation or its error.
type Outcome[T any] struct {
	Result *T          `json:"result,omitempty"`
	Error  *wire.Error `json:"error,omitempty"`
}

func NewOutcome[T any](res *T, err error) Outcome[T] {
	if err != nil {
		return Outcome[T]{Error: wire.AsError(err)}
	}
	return Outcome[T]{Result: res}
}

// NewRoomID returns a fresh random room id.
func NewRoomID() string {
	return uuid.New().String()
}

type options struct {
	logger       *zap.Logger
	dialer       board.Dialer
	paillierBits int
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialer replaces the relay client built from RelayAddress.
func WithDialer(dialer board.Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

func WithPaillierBits(bits int) Option {
	return func(o *options) {
		o.paillierBits = bits
	}
}

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) relay(addr string) (board.Dialer, error) {
	if o.dialer != nil {
		return o.dialer, nil
	}
	client, err := relay.NewClient(addr, o.logger.Named("relay"))
	if err != nil {
		return nil, wire.NewError(wire.KindInvalidInput, err)
	}
	return client, nil
}

func timeout(seconds uint32) time.Duration {
	return time.Duration(seconds) * time.Second
}

// Keygen runs the local participant of a keygen session.
func Keygen(ctx context.Context, params KeygenParams, opts ...Option) (*wire.KeyShare, error) {
	o := buildOptions(opts)
	p := dkg.Params{
		RoomID:  params.RoomID,
		Index:   params.ParticipantIndex,
		N:       params.ParticipantsCount,
		T:       params.ParticipantsThreshold,
		Timeout: timeout(params.TimeoutSeconds),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	dialer, err := o.relay(params.RelayAddress)
	if err != nil {
		return nil, err
	}
	return dkg.Run(ctx, dialer, p, dkg.WithLogger(o.logger.Named("keygen")))
}

// Sign runs the local participant of a signing session.
func Sign(ctx context.Context, params SignParams, opts ...Option) (*wire.Signature, error) {
	o := buildOptions(opts)
	hash, err := utils.HexToBytes(params.Data)
	if err != nil {
		return nil, wire.NewError(wire.KindInvalidInput, err)
	}
	key := &wire.KeyShare{}
	if err := json.Unmarshal([]byte(params.Key), key); err != nil {
		return nil, wire.NewError(wire.KindInvalidInput, errors.Wrap(err, "invalid key share"))
	}
	p := signing.Params{
		RoomID:  params.RoomID,
		Quorum:  params.ParticipantsIndexes,
		Hash:    hash,
		Key:     key,
		Timeout: timeout(params.TimeoutSeconds),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	dialer, err := o.relay(params.RelayAddress)
	if err != nil {
		return nil, err
	}
	signOpts := []signing.Option{signing.WithLogger(o.logger.Named("sign"))}
	if o.paillierBits != 0 {
		signOpts = append(signOpts, signing.WithPaillierBits(o.paillierBits))
	}
	return signing.Run(ctx, dialer, p, signOpts...)
}

// LocalKeygen runs every participant of a keygen session in process and returns the
// key shares ordered by index.
func LocalKeygen(ctx context.Context, n, t uint16, timeoutSeconds uint32, opts ...Option) ([]*wire.KeyShare, error) {
	if err := (wire.Scheme{N: n, T: t}).Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.dialer == nil {
		o.dialer = relay.NewHub(o.logger.Named("hub"))
	}
	roomID := NewRoomID()
	p := pool.NewWithResults[*wire.KeyShare]().WithContext(ctx).WithFirstError().WithCancelOnError()
	for i := uint16(1); i <= n; i++ {
		p.Go(func(ctx context.Context) (*wire.KeyShare, error) {
			return Keygen(ctx, KeygenParams{
				RoomID:                roomID,
				ParticipantIndex:      i,
				ParticipantsCount:     n,
				ParticipantsThreshold: t,
				TimeoutSeconds:        timeoutSeconds,
			}, WithDialer(o.dialer), WithLogger(o.logger))
		})
	}
	shares, err := p.Wait()
	if err != nil {
		return nil, err
	}
	res := make([]*wire.KeyShare, n)
	for _, ks := range shares {
		res[ks.Index-1] = ks
	}
	return res, nil
}
