// Package hub implements SignalingHub (C5, spec.md §4.5) and
// BroadcastPipeline (C6, spec.md §4.6): the per-connection dispatch loop
// and the verify/filter/persist/relay path for chat messages. Frame shapes
// are tagged variants discriminated by Type (spec.md §9's "dynamic-typed
// message frames become tagged variants" design note), embedding the
// teacher's pion/webrtc SDP/ICE types the same way
// internal/domain.SignalMessage did.
package hub

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v3"
	"github.com/relaymesh/signalhub/internal/domain"
)

type FrameType string

const (
	FrameJoin         FrameType = "join"
	FrameRoomInfo     FrameType = "room-info"
	FrameUserLeft     FrameType = "user-left"
	FrameOffer        FrameType = "offer"
	FrameAnswer       FrameType = "answer"
	FrameICECandidate FrameType = "ice-candidate"
	FrameBroadcast    FrameType = "broadcast"
	FrameAck          FrameType = "ack"
	FrameDeleteMsg    FrameType = "delete-msg"
)

// Frame is the single wire envelope for every control/data frame spec.md
// §6 names. Only the fields relevant to Type are populated; Decode
// validates the required subset per variant.
type Frame struct {
	Type FrameType `json:"type"`

	Room string `json:"room,omitempty"`

	// join
	User      *domain.User `json:"user,omitempty"`
	Signature string       `json:"signature,omitempty"` // hex-encoded detached signature

	// room-info
	Participants []domain.User `json:"participants,omitempty"`

	// user-left
	// (reuses User above)

	// offer / answer / ice-candidate
	ID        string                     `json:"id,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Target    *domain.User               `json:"target,omitempty"`
	Sender    *domain.User               `json:"sender,omitempty"`
	PublicKey string                     `json:"publicKey,omitempty"`

	// broadcast / ack
	Message *domain.ChatMessage `json:"message,omitempty"`

	// delete-msg
	MessageID string `json:"messageId,omitempty"`
}

var (
	ErrDecodeFailed    = errors.New("hub: frame decode failed")
	ErrMissingField    = errors.New("hub: frame missing required field")
	ErrUnknownFrame    = errors.New("hub: unknown frame type")
)

// Decode is the single decode entry point (spec.md §9): it produces a
// validated Frame or a decode error, never a partially-valid Frame.
func Decode(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, ErrDecodeFailed
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Frame) validate() error {
	switch f.Type {
	case FrameJoin:
		if f.Room == "" || f.User == nil || f.User.PublicKey == "" || f.Signature == "" {
			return ErrMissingField
		}
	case FrameOffer:
		if f.ID == "" || f.Offer == nil || f.Target == nil || f.Room == "" || f.PublicKey == "" || f.Signature == "" {
			return ErrMissingField
		}
	case FrameAnswer:
		if f.ID == "" || f.Answer == nil || f.Target == nil || f.Room == "" {
			return ErrMissingField
		}
	case FrameICECandidate:
		if f.ID == "" || f.Candidate == nil || f.Target == nil || f.Room == "" {
			return ErrMissingField
		}
	case FrameBroadcast:
		if f.Room == "" || f.Message == nil {
			return ErrMissingField
		}
	case "":
		return ErrMissingField
	default:
		return ErrUnknownFrame
	}
	return nil
}
