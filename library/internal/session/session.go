// Package session tracks the signed-in identity of the process and notifies
// listeners about sign-in and sign-out.
package session

import (
	"context"
	"sync"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"go.uber.org/zap"
)

type Listener func(event model.AuthEvent, s *model.Session)

type Subscription struct {
	unsubscribe func()
}

func (s Subscription) Unsubscribe() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Auth is the session part of the backend client.
type Auth interface {
	GetSession(ctx context.Context) (*model.Session, error)
	OnAuthStateChange(fn Listener) Subscription
	SignOut(ctx context.Context) error
}

type Tracker struct {
	mu        sync.RWMutex
	current   *model.Session
	listeners map[int]Listener
	nextID    int
	log       *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		listeners: make(map[int]Listener),
		log:       log.Named("session"),
	}
}

func (t *Tracker) Current() *model.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return nil
	}
	s := *t.current
	return &s
}

// UserID returns the id of the signed-in user or an empty string.
func (t *Tracker) UserID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return ""
	}
	return t.current.User.ID
}

func (t *Tracker) Set(s model.Session) {
	t.mu.Lock()
	t.current = &s
	t.mu.Unlock()
	t.log.Info("signed in", zap.String("user_id", s.User.ID), zap.String("email", s.User.Email))
	t.emit(model.EventSignedIn, &s)
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	prev := t.current
	t.current = nil
	t.mu.Unlock()
	if prev == nil {
		return
	}
	t.log.Info("signed out", zap.String("user_id", prev.User.ID))
	t.emit(model.EventSignedOut, nil)
}

// Subscribe registers fn for future changes. A present session is replayed
// to fn as SIGNED_IN right away.
func (t *Tracker) Subscribe(fn Listener) Subscription {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	var current *model.Session
	if t.current != nil {
		s := *t.current
		current = &s
	}
	t.mu.Unlock()

	if current != nil {
		fn(model.EventSignedIn, current)
	}
	return Subscription{unsubscribe: func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}}
}

func (t *Tracker) emit(event model.AuthEvent, s *model.Session) {
	t.mu.RLock()
	fns := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()
	for _, fn := range fns {
		fn(event, s)
	}
}

// GetSession, OnAuthStateChange and SignOut make a bare Tracker usable as Auth.

func (t *Tracker) GetSession(context.Context) (*model.Session, error) {
	return t.Current(), nil
}

func (t *Tracker) OnAuthStateChange(fn Listener) Subscription {
	return t.Subscribe(fn)
}

func (t *Tracker) SignOut(context.Context) error {
	t.Clear()
	return nil
}
