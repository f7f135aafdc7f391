// Package store keeps the five entity collections in process memory.
// Nothing is persisted; the data lives as long as the Store value.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store struct {
	mu sync.RWMutex

	profiles  map[string]model.Profile
	libraries map[string]model.Library
	books     map[int]model.Book
	members   map[int]model.Member
	issues    map[int]model.Issue

	// per kind counters, never reused after deletes
	bookSeq   int
	memberSeq int
	issueSeq  int

	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		s.log = log.Named("store")
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		profiles:  make(map[string]model.Profile),
		libraries: make(map[string]model.Library),
		books:     make(map[int]model.Book),
		members:   make(map[int]model.Member),
		issues:    make(map[int]model.Issue),
		now:       time.Now,
		newID:     uuid.NewString,
		log:       zap.NewNop(),
	}
	for _, op := range opts {
		op(s)
	}
	return s
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// Profiles

func (s *Store) CreateProfile(p model.Profile) model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.newID()
	}
	p.CreatedAt = s.timestamp()
	p.UpdatedAt = p.CreatedAt
	s.profiles[p.ID] = p
	return p
}

func (s *Store) GetProfile(id string) (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

func (s *Store) FindProfileByEmail(email string) (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Email == email {
			return p, true
		}
	}
	return model.Profile{}, false
}

func (s *Store) UpdateProfile(id string, patch model.ProfilePatch) (model.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, false
	}
	patch.Apply(&p)
	p.UpdatedAt = s.timestamp()
	s.profiles[id] = p
	return p, true
}

func (s *Store) DeleteProfile(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return false
	}
	delete(s.profiles, id)
	return true
}

// ListProfiles returns the profile with the given id, if any: profiles are
// only ever visible to themselves.
func (s *Store) ListProfiles(id string) []model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[id]; ok {
		return []model.Profile{p}
	}
	return []model.Profile{}
}

// AllProfiles returns every profile ordered by creation time.
func (s *Store) AllProfiles() []model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Libraries

func (s *Store) CreateLibrary(l model.Library) model.Library {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.newID()
	l.CreatedAt = s.timestamp()
	l.UpdatedAt = l.CreatedAt
	s.libraries[l.ID] = l
	s.log.Debug("library created", zap.String("id", l.ID), zap.String("user_id", l.UserID))
	return l
}

func (s *Store) GetLibrary(id string) (model.Library, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.libraries[id]
	return l, ok
}

func (s *Store) UpdateLibrary(id string, patch model.LibraryPatch) (model.Library, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.libraries[id]
	if !ok {
		return model.Library{}, false
	}
	patch.Apply(&l)
	l.UpdatedAt = s.timestamp()
	s.libraries[id] = l
	return l, true
}

// DeleteLibrary removes the library together with its books, members and issues.
func (s *Store) DeleteLibrary(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var books, members, issues int
	for k, b := range s.books {
		if b.LibraryID == id {
			delete(s.books, k)
			books++
		}
	}
	for k, m := range s.members {
		if m.LibraryID == id {
			delete(s.members, k)
			members++
		}
	}
	for k, i := range s.issues {
		if i.LibraryID == id {
			delete(s.issues, k)
			issues++
		}
	}
	_, ok := s.libraries[id]
	delete(s.libraries, id)
	s.log.Debug("library deleted", zap.String("id", id), zap.Bool("existed", ok),
		zap.Int("books", books), zap.Int("members", members), zap.Int("issues", issues))
	return ok
}

func (s *Store) ListLibraries(userID string) []model.Library {
	return s.libraryList(func(l model.Library) bool { return l.UserID == userID })
}

func (s *Store) AllLibraries() []model.Library {
	return s.libraryList(func(model.Library) bool { return true })
}

func (s *Store) libraryList(keep func(model.Library) bool) []model.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	libs := make([]model.Library, 0)
	for _, l := range s.libraries {
		if keep(l) {
			libs = append(libs, l)
		}
	}
	sort.Slice(libs, func(i, j int) bool {
		if libs[i].CreatedAt.Equal(libs[j].CreatedAt) {
			return libs[i].ID < libs[j].ID
		}
		return libs[i].CreatedAt.Before(libs[j].CreatedAt)
	})
	return libs
}

// Books

func (s *Store) CreateBook(b model.Book) model.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookSeq++
	b.ID = s.bookSeq
	b.CreatedAt = s.timestamp()
	b.UpdatedAt = b.CreatedAt
	s.books[b.ID] = b
	return b
}

func (s *Store) GetBook(id int) (model.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	return b, ok
}

func (s *Store) UpdateBook(id int, patch model.BookPatch) (model.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return model.Book{}, false
	}
	patch.Apply(&b)
	b.UpdatedAt = s.timestamp()
	s.books[id] = b
	return b, true
}

func (s *Store) DeleteBook(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return false
	}
	delete(s.books, id)
	return true
}

func (s *Store) ListBooks(libraryID string) []model.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byLibrary(s.books, libraryID, func(b model.Book) string { return b.LibraryID })
}

// Members

func (s *Store) CreateMember(m model.Member) model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberSeq++
	m.ID = s.memberSeq
	m.CreatedAt = s.timestamp()
	m.UpdatedAt = m.CreatedAt
	s.members[m.ID] = m
	return m
}

func (s *Store) GetMember(id int) (model.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	return m, ok
}

func (s *Store) UpdateMember(id int, patch model.MemberPatch) (model.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return model.Member{}, false
	}
	patch.Apply(&m)
	m.UpdatedAt = s.timestamp()
	s.members[id] = m
	return m, true
}

func (s *Store) DeleteMember(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false
	}
	delete(s.members, id)
	return true
}

func (s *Store) ListMembers(libraryID string) []model.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byLibrary(s.members, libraryID, func(m model.Member) string { return m.LibraryID })
}

// Issues

func (s *Store) CreateIssue(i model.Issue) model.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueSeq++
	i.ID = s.issueSeq
	i.CreatedAt = s.timestamp()
	i.UpdatedAt = i.CreatedAt
	s.issues[i.ID] = i
	return i
}

func (s *Store) GetIssue(id int) (model.Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.issues[id]
	return i, ok
}

func (s *Store) UpdateIssue(id int, patch model.IssuePatch) (model.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.issues[id]
	if !ok {
		return model.Issue{}, false
	}
	patch.Apply(&i)
	i.UpdatedAt = s.timestamp()
	s.issues[id] = i
	return i, true
}

func (s *Store) DeleteIssue(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return false
	}
	delete(s.issues, id)
	return true
}

func (s *Store) ListIssues(libraryID string) []model.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byLibrary(s.issues, libraryID, func(i model.Issue) string { return i.LibraryID })
}

// byLibrary filters a numeric-keyed collection by owning library, ordered by id.
func byLibrary[T any](items map[int]T, libraryID string, owner func(T) string) []T {
	ids := make([]int, 0, len(items))
	for id, item := range items {
		if owner(item) == libraryID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, items[id])
	}
	return out
}
