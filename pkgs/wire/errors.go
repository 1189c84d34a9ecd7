package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies session and input failures
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindParticipantMissing
	KindInvalidShare
	KindInvalidPartialSignature
	KindInsufficientQuorum
	KindTransportUnavailable
	// KindProtocolFailure is a failed final check that cannot be attributed to a party
	KindProtocolFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindParticipantMissing:
		return "ParticipantMissing"
	case KindInvalidShare:
		return "InvalidShare"
	case KindInvalidPartialSignature:
		return "InvalidPartialSignature"
	case KindInsufficientQuorum:
		return "InsufficientQuorum"
	case KindTransportUnavailable:
		return "TransportUnavailable"
	case KindProtocolFailure:
		return "ProtocolFailure"
	default:
		return "Unknown"
	}
}

// Error is the single failure type returned by keygen and signing sessions.
// Parties holds the indexes responsible: missing peers or the sender of an invalid message.
type Error struct {
	Kind    Kind
	Parties []uint16
	Err     error
}

var (
	ErrInvalidInput            = &Error{Kind: KindInvalidInput}
	ErrParticipantMissing      = &Error{Kind: KindParticipantMissing}
	ErrInvalidShare            = &Error{Kind: KindInvalidShare}
	ErrInvalidPartialSignature = &Error{Kind: KindInvalidPartialSignature}
	ErrInsufficientQuorum      = &Error{Kind: KindInsufficientQuorum}
	ErrTransportUnavailable    = &Error{Kind: KindTransportUnavailable}
	ErrProtocolFailure         = &Error{Kind: KindProtocolFailure}
)

func NewError(kind Kind, err error, parties ...uint16) *Error {
	sorted := append([]uint16(nil), parties...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Error{Kind: kind, Parties: sorted, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if len(e.Parties) > 0 {
		sb.WriteString(fmt.Sprintf(" %v", e.Parties))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can use the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// AsError extracts the typed session error, wrapping anything else as a protocol failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(KindProtocolFailure, err)
}

type errorJSON struct {
	Kind    string   `json:"kind,omitempty"`
	Parties []uint16 `json:"parties,omitempty"`
	Error   string   `json:"error"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(errorJSON{Kind: e.Kind.String(), Parties: e.Parties, Error: msg})
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var ej errorJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	e.Kind = 0
	for k := KindInvalidInput; k <= KindProtocolFailure; k++ {
		if k.String() == ej.Kind {
			e.Kind = k
		}
	}
	e.Parties = ej.Parties
	if ej.Error != "" {
		e.Err = errors.New(ej.Error)
	}
	return nil
}

// MakeErr encodes an error as a relay JSON error response
func MakeErr(err error) []byte {
	b, _ := json.Marshal(errorJSON{Error: err.Error()})
	return b
}

// ParseAsError parses the error from a relay response
func ParseAsError(msg []byte) (string, error) {
	var ej errorJSON
	if err := json.Unmarshal(msg, &ej); err != nil {
		return "", fmt.Errorf("failed to unmarshal error message: %w", err)
	}
	return ej.Error, nil
}
