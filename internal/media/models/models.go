// Package models holds the recorded-video session and its encoded artifacts.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"deepname/pkg/platform/fsm"
)

// State is where a capture session stands. The capture states up to
// previewing happen on the client; the server only ever sees a session from
// previewing on.
type State string

const (
	StateNoStream   State = "no_stream"
	StateStreaming  State = "streaming"
	StateRecording  State = "recording"
	StatePreviewing State = "previewing"
	StateProcessing State = "processing"
	StateShareReady State = "share_ready"
	StateFailed     State = "failed"
)

var Transitions = fsm.Table[State]{
	StateNoStream:   {StateStreaming, StateFailed},
	StateStreaming:  {StateRecording, StateNoStream, StateFailed},
	StateRecording:  {StatePreviewing, StateFailed},
	StatePreviewing: {StateProcessing, StateShareReady, StateRecording, StateFailed},
	StateProcessing: {StateShareReady, StateFailed},
}

// Format is an encoded output container.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMOV Format = "mov"
)

// ParseFormat accepts "mp4" or "mov" in any case.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP4, FormatMOV:
		return f, true
	}
	return "", false
}

func (f Format) ContentType() string {
	if f == FormatMOV {
		return "video/quicktime"
	}
	return "video/mp4"
}

// DefaultFileName is used when the embedding service names no file.
func (f Format) DefaultFileName() string {
	return "deeptruth." + string(f)
}

// Artifact is one encoded video.
type Artifact struct {
	Format   Format
	FileName string
	Data     []byte
}

// ArtifactInfo describes an artifact without its bytes.
type ArtifactInfo struct {
	Format   Format
	FileName string
	Size     int
}

// Session is one uploaded recording.
type Session struct {
	ID        uuid.UUID
	Owner     string
	Title     string
	State     State
	Message   string
	Artifacts []ArtifactInfo
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// NewSession starts a session in previewing: the client has a recorded buffer.
func NewSession(owner, title string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.New(),
		Owner:     owner,
		Title:     title,
		State:     StatePreviewing,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) TransitionTo(to State, now time.Time) error {
	if !Transitions.Allows(s.State, to) {
		return &fsm.TransitionError[State]{From: s.State, To: to}
	}
	s.State = to
	s.UpdatedAt = now
	return nil
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) Clone() *Session {
	c := *s
	c.Artifacts = append([]ArtifactInfo(nil), s.Artifacts...)
	return &c
}
