package wire

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Protocol separates keygen and signing traffic that might share a room.
type Protocol string

const (
	ProtocolKeygen Protocol = "keygen"
	ProtocolSign   Protocol = "sign"
)

type TransportType uint64

const (
	DKGCommitMessageType TransportType = iota + 1
	DKGShareMessageType
	SignCommitMessageType
	SignMtAMessageType
	SignRevealMessageType
	SignPartialMessageType
	JoinMessageType
	JoinAckMessageType
)

func (t TransportType) String() string {
	switch t {
	case DKGCommitMessageType:
		return "DKGCommitMessageType"
	case DKGShareMessageType:
		return "DKGShareMessageType"
	case SignCommitMessageType:
		return "SignCommitMessageType"
	case SignMtAMessageType:
		return "SignMtAMessageType"
	case SignRevealMessageType:
		return "SignRevealMessageType"
	case SignPartialMessageType:
		return "SignPartialMessageType"
	case JoinMessageType:
		return "JoinMessageType"
	case JoinAckMessageType:
		return "JoinAckMessageType"
	default:
		return "no type impl"
	}
}

// Broadcast is the recipient index of messages addressed to the whole room
const Broadcast uint16 = 0

// Message is the unit exchanged through a relay room. Session tags the protocol
// messages of one session so that history left in a reused room is ignored.
type Message struct {
	RoomID   string        `json:"room_id"`
	Protocol Protocol      `json:"protocol"`
	Session  string        `json:"session,omitempty"`
	From     uint16        `json:"from"`
	To       uint16        `json:"to,omitempty"`
	Round    uint16        `json:"round"`
	Type     TransportType `json:"type"`
	Data     []byte        `json:"data"`
}

func (m *Message) IsBroadcast() bool {
	return m.To == Broadcast
}

// Scheme describes a (t, n) sharing. T is the number of absent or corrupt parties
// tolerated, so any T+1 parties can sign.
type Scheme struct {
	N uint16 `json:"n"`
	T uint16 `json:"t"`
}

func (s Scheme) Validate() error {
	if s.N < 2 {
		return NewError(KindInvalidInput, errors.Errorf("participants count %d, need at least 2", s.N))
	}
	if s.T < 1 || s.T >= s.N {
		return NewError(KindInvalidInput, errors.Errorf("threshold %d out of range [1, %d)", s.T, s.N))
	}
	return nil
}

// Quorum returns the minimal number of signers.
func (s Scheme) Quorum() int {
	return int(s.T) + 1
}

// Indexes returns 1..N
func (s Scheme) Indexes() []uint16 {
	ids := make([]uint16, 0, s.N)
	for i := uint16(1); i <= s.N; i++ {
		ids = append(ids, i)
	}
	return ids
}

// Encode serializes a round payload.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}
	return b, nil
}

// Decode deserializes a round payload.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to decode payload")
	}
	return nil
}
