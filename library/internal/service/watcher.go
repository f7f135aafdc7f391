package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/realtime"
	"github.com/Astemirdum/library-admin/library/internal/session"
)

var watchedTables = []model.Table{model.TableBooks, model.TableMembers, model.TableIssues}

// watch is the selected library of one user.
type watch struct {
	libraryID string
	channels  []realtime.Channel
	current   model.Summary
	lastErr   error
}

// Watcher keeps the summary of each user's selected library up to date. It
// recomputes on a library switch, on every pushed change of the library's
// books, members or issues, and after local mutations when nothing is pushed.
type Watcher struct {
	client client.Client
	agg    *Aggregator
	log    *zap.Logger

	mu        sync.Mutex
	watches   map[string]*watch
	nextID    int
	listeners map[int]func(model.Summary)
}

func NewWatcher(c client.Client, agg *Aggregator, log *zap.Logger) *Watcher {
	return &Watcher{
		client:    c,
		agg:       agg,
		log:       log.Named("watcher"),
		watches:   make(map[string]*watch),
		listeners: make(map[int]func(model.Summary)),
	}
}

// Switch selects the library the user of ctx watches and computes its
// summary. An empty id stops watching.
func (w *Watcher) Switch(ctx context.Context, libraryID string) (model.Summary, error) {
	userID := w.client.Auth().UserID(ctx)
	if userID == "" {
		if libraryID == "" {
			return w.agg.Summary(ctx, "")
		}
		return model.Summary{}, errs.ErrNotSignedIn
	}
	if libraryID != "" {
		res := w.client.From(model.TableLibraries).
			Select(query.Columns(model.ColID)).
			Eq(model.ColID, libraryID).
			Single().
			Execute(ctx)
		if res.Err != nil {
			return model.Summary{}, errors.Wrap(res.Err, "library")
		}
	}

	w.mu.Lock()
	wt, ok := w.watches[userID]
	if !ok {
		wt = &watch{}
		w.watches[userID] = wt
	}
	old := wt.channels
	wt.channels = nil
	wt.libraryID = libraryID
	if libraryID == "" {
		delete(w.watches, userID)
	}
	w.mu.Unlock()
	w.removeChannels(old)

	if libraryID == "" {
		return w.agg.Summary(ctx, "")
	}

	// pushed changes arrive without a request, they refresh as the watching user
	pushCtx := session.NewContext(context.Background(), model.Session{User: model.User{ID: userID}})
	chans := make([]realtime.Channel, 0, len(watchedTables))
	for _, table := range watchedTables {
		ch := w.client.Channel(string(table)+"-"+libraryID).
			On(realtime.EventSpec{
				Event:  realtime.EventAll,
				Schema: realtime.SchemaPublic,
				Table:  table,
				Filter: realtime.LibraryFilter(libraryID),
			}, func(realtime.Change) {
				w.refreshIfCurrent(pushCtx, userID, libraryID)
			}).
			Subscribe()
		chans = append(chans, ch)
	}
	w.mu.Lock()
	if w.watches[userID] == wt && wt.libraryID == libraryID {
		wt.channels = chans
		chans = nil
	}
	w.mu.Unlock()
	// switched again meanwhile
	w.removeChannels(chans)

	return w.refresh(ctx, userID)
}

// Refresh recomputes the summary of the library the user of ctx watches.
func (w *Watcher) Refresh(ctx context.Context) (model.Summary, error) {
	return w.refresh(ctx, w.client.Auth().UserID(ctx))
}

func (w *Watcher) refresh(ctx context.Context, userID string) (model.Summary, error) {
	w.mu.Lock()
	wt := w.watches[userID]
	var libraryID string
	if wt != nil {
		libraryID = wt.libraryID
	}
	w.mu.Unlock()

	sum, err := w.agg.Summary(ctx, libraryID)
	if wt == nil {
		return sum, err
	}

	w.mu.Lock()
	if w.watches[userID] != wt || wt.libraryID != libraryID {
		// a newer switch owns the state
		w.mu.Unlock()
		return sum, err
	}
	wt.current, wt.lastErr = sum, err
	fns := make([]func(model.Summary), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(sum)
	}
	return sum, err
}

// Current returns the last summary computed for the user of ctx and the
// error that came with it.
func (w *Watcher) Current(ctx context.Context) (model.Summary, error) {
	userID := w.client.Auth().UserID(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()
	wt, ok := w.watches[userID]
	if !ok {
		return model.Summary{}, nil
	}
	return wt.current, wt.lastErr
}

// LibraryID returns the library the user of ctx watches.
func (w *Watcher) LibraryID(ctx context.Context) string {
	return w.libraryOf(w.client.Auth().UserID(ctx))
}

func (w *Watcher) libraryOf(userID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wt, ok := w.watches[userID]; ok {
		return wt.libraryID
	}
	return ""
}

// Subscribe registers fn for every new summary and returns its cancel func.
func (w *Watcher) Subscribe(fn func(model.Summary)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// Touched is called after a local mutation of libraryID. Pushed changes
// already trigger a refresh, so it only acts when the client is not live.
func (w *Watcher) Touched(ctx context.Context, libraryID string) {
	if w.client.Live() {
		return
	}
	w.refreshIfCurrent(ctx, w.client.Auth().UserID(ctx), libraryID)
}

func (w *Watcher) refreshIfCurrent(ctx context.Context, userID, libraryID string) {
	if libraryID == "" || w.libraryOf(userID) != libraryID {
		return
	}
	if _, err := w.refresh(ctx, userID); err != nil {
		w.log.Warn("refresh summary", zap.String("library", libraryID), zap.Error(err))
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	var old []realtime.Channel
	for _, wt := range w.watches {
		old = append(old, wt.channels...)
	}
	w.watches = make(map[string]*watch)
	w.mu.Unlock()
	w.removeChannels(old)
	return nil
}

func (w *Watcher) removeChannels(chans []realtime.Channel) {
	for _, ch := range chans {
		if err := w.client.RemoveChannel(ch); err != nil {
			w.log.Warn("remove channel", zap.String("channel", ch.Name()), zap.Error(err))
		}
	}
}
