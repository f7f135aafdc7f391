// Package realtime delivers table change notifications to channels that
// subscribed to them, keyed by table and an owning-library filter such as
// "library_id=eq.<id>".
package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Event string

const (
	EventAll    Event = "*"
	EventInsert Event = "INSERT"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
)

type State string

const (
	StateJoining    State = "JOINING"
	StateSubscribed State = "SUBSCRIBED"
	StateClosed     State = "CLOSED"
)

const SchemaPublic = "public"

// EventSpec selects the changes a channel binding is interested in.
type EventSpec struct {
	Event  Event       `json:"event"`
	Schema string      `json:"schema"`
	Table  model.Table `json:"table"`
	Filter string      `json:"filter"`
}

// Change is one committed insert, update or delete.
type Change struct {
	Event     Event       `json:"eventType"`
	Schema    string      `json:"schema"`
	Table     model.Table `json:"table"`
	LibraryID string      `json:"library_id"`
	RecordID  string      `json:"record_id"`
	CommitAt  time.Time   `json:"commit_timestamp"`
}

type Handler func(Change)

var ErrInvalidFilter = errors.New("invalid filter expression")

// ParseFilter splits "column=eq.value".
func ParseFilter(expr string) (column, value string, err error) {
	column, rest, ok := strings.Cut(expr, "=")
	if !ok || column == "" {
		return "", "", errors.Wrap(ErrInvalidFilter, expr)
	}
	value, ok = strings.CutPrefix(rest, "eq.")
	if !ok {
		return "", "", errors.Wrap(ErrInvalidFilter, expr)
	}
	return column, value, nil
}

// LibraryFilter builds the filter expression scoping a channel to one library.
func LibraryFilter(libraryID string) string {
	return model.ColLibraryID + "=eq." + libraryID
}

func (s EventSpec) Matches(c Change) bool {
	if s.Schema != "" && c.Schema != "" && s.Schema != c.Schema {
		return false
	}
	if s.Table != "" && s.Table != c.Table {
		return false
	}
	if s.Event != "" && s.Event != EventAll && s.Event != c.Event {
		return false
	}
	if s.Filter == "" {
		return true
	}
	column, value, err := ParseFilter(s.Filter)
	if err != nil {
		return false
	}
	switch column {
	case model.ColLibraryID:
		return c.LibraryID == value
	case model.ColID:
		return c.RecordID == value
	}
	return false
}

type Channel interface {
	Name() string
	On(spec EventSpec, fn Handler) Channel
	Subscribe() Channel
	State() State
}

type Hub interface {
	Channel(name string) Channel
	RemoveChannel(ch Channel) error
	Publish(ctx context.Context, c Change) error
	// Live reports whether published changes are actually pushed to channels.
	Live() bool
	Close() error
}

type binding struct {
	spec EventSpec
	fn   Handler
}

type channel struct {
	name string
	reg  *registry

	mu       sync.RWMutex
	bindings []binding
	state    State
}

func (c *channel) Name() string { return c.name }

func (c *channel) On(spec EventSpec, fn Handler) Channel {
	if spec.Schema == "" {
		spec.Schema = SchemaPublic
	}
	c.mu.Lock()
	c.bindings = append(c.bindings, binding{spec: spec, fn: fn})
	c.mu.Unlock()
	return c
}

func (c *channel) Subscribe() Channel {
	c.mu.Lock()
	c.state = StateSubscribed
	c.mu.Unlock()
	c.reg.add(c)
	return c
}

func (c *channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *channel) close() {
	c.mu.Lock()
	c.state = StateClosed
	c.bindings = nil
	c.mu.Unlock()
}

func (c *channel) deliver(change Change) int {
	c.mu.RLock()
	bindings := append([]binding(nil), c.bindings...)
	c.mu.RUnlock()
	n := 0
	for _, b := range bindings {
		if b.spec.Matches(change) {
			b.fn(change)
			n++
		}
	}
	return n
}

// registry keeps the subscribed channels of a hub.
type registry struct {
	mu       sync.RWMutex
	channels map[*channel]struct{}
	log      *zap.Logger
}

func newRegistry(log *zap.Logger) *registry {
	return &registry{
		channels: make(map[*channel]struct{}),
		log:      log,
	}
}

func (r *registry) newChannel(name string) *channel {
	return &channel{name: name, reg: r, state: StateJoining}
}

func (r *registry) add(c *channel) {
	r.mu.Lock()
	r.channels[c] = struct{}{}
	r.mu.Unlock()
	r.log.Debug("channel subscribed", zap.String("channel", c.name))
}

func (r *registry) remove(ch Channel) error {
	c, ok := ch.(*channel)
	if !ok {
		return errors.Errorf("foreign channel %T", ch)
	}
	r.mu.Lock()
	delete(r.channels, c)
	r.mu.Unlock()
	c.close()
	r.log.Debug("channel removed", zap.String("channel", c.name))
	return nil
}

func (r *registry) dispatch(change Change) int {
	r.mu.RLock()
	chans := make([]*channel, 0, len(r.channels))
	for c := range r.channels {
		chans = append(chans, c)
	}
	r.mu.RUnlock()
	n := 0
	for _, c := range chans {
		n += c.deliver(change)
	}
	return n
}

func (r *registry) closeAll() {
	r.mu.Lock()
	chans := r.channels
	r.channels = make(map[*channel]struct{})
	r.mu.Unlock()
	for c := range chans {
		c.close()
	}
}
