// Package verify runs streaming speaker verification sessions.
//
// A [Session] is bound to one user and one [Channel]. Every binary chunk
// received is normalized, embedded and matched against the user's gallery;
// the decision is sent back as a [Message]. Chunks are processed strictly
// in arrival order. A chunk that fails to decode or embed is dropped and
// counted; it never ends the session. The session ends when the channel
// closes, fails, or the context is cancelled, and then evicts the user's
// cached gallery.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/haivivi/automuter/pkg/voiceprint"
)

// Decision actions sent to the client.
const (
	ActionMute   = "MUTE"
	ActionUnmute = "UNMUTE"
)

// ErrClosed is returned by Channel.Receive when the peer closed the
// channel normally.
var ErrClosed = errors.New("verify: channel closed")

// Message is the decision sent to the client for one chunk.
type Message struct {
	Action          string  `json:"action"`
	Similarity      float64 `json:"similarity"`
	IsTargetSpeaker bool    `json:"isTargetSpeaker"`
}

// MessageFor converts a decision to a Message. A match means a target
// speaker is talking, which mutes. Similarity is rounded to 4 decimals.
func MessageFor(d voiceprint.Decision) Message {
	m := Message{
		Action:          ActionUnmute,
		Similarity:      math.Round(d.Score*1e4) / 1e4,
		IsTargetSpeaker: d.Match,
	}
	if d.Match {
		m.Action = ActionMute
	}
	return m
}

// Channel is a bidirectional message channel to one client.
type Channel interface {
	// Receive blocks until the next audio chunk arrives. It returns
	// ErrClosed when the peer closed the channel.
	Receive(ctx context.Context) ([]byte, error)

	// Send delivers a decision to the client.
	Send(ctx context.Context, msg Message) error

	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// State is the lifecycle state of a Session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats counts what a session has processed.
type Stats struct {
	Chunks       int64 `json:"chunks"`
	Decisions    int64 `json:"decisions"`
	DecodeErrors int64 `json:"decodeErrors"`
	EmbedErrors  int64 `json:"embedErrors"`
	StoreErrors  int64 `json:"storeErrors"`
}
