package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"garment-designer/designer"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one live editing session. All access to its editor goes
// through Do, which serializes callers.
type Session struct {
	ID      string
	OwnerID string
	// DesignID is the record the session was opened from or last finished
	// into. Only read or write it inside Do.
	DesignID string

	mu       sync.Mutex
	editor   *designer.Editor
	lastUsed time.Time
}

// Do runs fn with exclusive access to the session's editor.
func (s *Session) Do(fn func(e *designer.Editor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return fn(s.editor)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// State is the JSON view of a session.
type State struct {
	ID              string             `json:"id"`
	DesignID        string             `json:"designId,omitempty"`
	Canvas          designer.Canvas    `json:"canvas"`
	Elements        []designer.Element `json:"elements"`
	GarmentColor    string             `json:"garmentColor"`
	ActiveID        *int64             `json:"activeId"`
	PreviewImageURL string             `json:"previewImageUrl,omitempty"`
	Revision        uint64             `json:"revision"`
	Gesture         string             `json:"gesture"`
}

// Snapshot returns the session state. Callers already inside Do must use
// StateOf instead.
func (s *Session) Snapshot() State {
	var st State
	_ = s.Do(func(e *designer.Editor) error {
		st = s.StateOf(e)
		return nil
	})
	return st
}

// StateOf builds the state view from an editor the caller already holds.
func (s *Session) StateOf(e *designer.Editor) State {
	st := State{
		ID:              s.ID,
		DesignID:        s.DesignID,
		Canvas:          e.Canvas(),
		Elements:        e.Elements(),
		GarmentColor:    e.GarmentColor(),
		PreviewImageURL: e.PreviewImageURL(),
		Revision:        e.Revision(),
		Gesture:         e.Gesture().State().String(),
	}
	if id, ok := e.Active(); ok {
		st.ActiveID = &id
	}
	return st
}

// Registry holds the live sessions of all users.
type Registry struct {
	canvas designer.Canvas
	idle   time.Duration

	// OnChange, when set, is called after every committed change in any
	// session. It runs while the session is locked and must not call Do.
	OnChange func(sessionID string, revision uint64)
	// AllowSticker accepts the sticker URIs sessions may place besides
	// inline data URIs. Nil allows only inline images.
	AllowSticker func(uri string) bool

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns a registry whose editors clamp against canvas. Sessions
// unused for idle are dropped by Sweep; zero disables expiry.
func NewRegistry(canvas designer.Canvas, idle time.Duration) *Registry {
	return &Registry{
		canvas:   canvas,
		idle:     idle,
		sessions: make(map[string]*Session),
	}
}

// Canvas returns the canvas new sessions are created with.
func (r *Registry) Canvas() designer.Canvas { return r.canvas }

func (r *Registry) options(id string) []designer.Option {
	return []designer.Option{
		designer.WithChangeObserver(func(rev uint64) {
			if r.OnChange != nil {
				r.OnChange(id, rev)
			}
		}),
		designer.WithStickerPolicy(r.AllowSticker),
	}
}

func (r *Registry) add(s *Session) *Session {
	s.lastUsed = time.Now()
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"user_id":    s.OwnerID,
		"design_id":  s.DesignID,
	}).Info("Editing session opened")
	return s
}

// Create opens a session on an empty design.
func (r *Registry) Create(ownerID string) *Session {
	id := ulid.Make().String()
	return r.add(&Session{
		ID:      id,
		OwnerID: ownerID,
		editor:  designer.NewEditor(r.canvas, r.options(id)...),
	})
}

// Open starts a session from a persisted design. A malformed design still
// opens an empty session; the load error is returned alongside it.
func (r *Registry) Open(ownerID, designID, elementsJSON, garmentColor string) (*Session, error) {
	id := ulid.Make().String()
	editor, loadErr := designer.LoadForEditing(elementsJSON, garmentColor, r.canvas, r.options(id)...)
	s := r.add(&Session{
		ID:       id,
		OwnerID:  ownerID,
		DesignID: designID,
		editor:   editor,
	})
	return s, loadErr
}

// Get returns the owner's session. Sessions of other users are reported as
// not found.
func (r *Registry) Get(ownerID, id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close discards the owner's session.
func (r *Registry) Close(ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	logrus.WithFields(logrus.Fields{"session_id": id, "user_id": ownerID}).Info("Editing session closed")
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle since before now minus the idle timeout and
// returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idle)

	// Session locks are taken outside the registry lock; a session busy in
	// Do must not block lookups of other sessions.
	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.RUnlock()

	var idle []*Session
	for _, s := range live {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	if len(idle) == 0 {
		return 0
	}

	r.mu.Lock()
	removed := 0
	for _, s := range idle {
		if r.sessions[s.ID] == s {
			delete(r.sessions, s.ID)
			removed++
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{"removed": removed, "remaining": remaining}).Info("Swept idle editing sessions")
	return removed
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.idle <= 0 {
		return
	}
	interval := r.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
