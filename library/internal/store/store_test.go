package store_test

import (
	"testing"
	"time"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/store"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_CountersNeverReused(t *testing.T) {
	t.Parallel()
	s := store.New()
	lib := s.CreateLibrary(model.Library{Name: "Branch A", UserID: "u1"})

	b1 := s.CreateBook(model.Book{Code: 101, LibraryID: lib.ID})
	b2 := s.CreateBook(model.Book{Code: 102, LibraryID: lib.ID})
	require.Equal(t, 1, b1.ID)
	require.Equal(t, 2, b2.ID)

	require.True(t, s.DeleteBook(b2.ID))
	b3 := s.CreateBook(model.Book{Code: 103, LibraryID: lib.ID})
	require.Equal(t, 3, b3.ID)

	m := s.CreateMember(model.Member{Code: 1001, LibraryID: lib.ID})
	require.Equal(t, 1, m.ID)
	i := s.CreateIssue(model.Issue{BookCode: 101, MemberCode: 1001, LibraryID: lib.ID})
	require.Equal(t, 1, i.ID)
}

func TestStore_GeneratedLibraryIDsAreUnique(t *testing.T) {
	t.Parallel()
	s := store.New()
	seen := make(map[string]struct{})
	for n := 0; n < 100; n++ {
		l := s.CreateLibrary(model.Library{Name: "lib", UserID: "u1"})
		require.NotEmpty(t, l.ID)
		_, dup := seen[l.ID]
		require.False(t, dup)
		seen[l.ID] = struct{}{}
	}
}

func TestStore_UpdateMergesAndRefreshesTimestamp(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := created
	s := store.New(store.WithClock(func() time.Time { return now }))

	lib := s.CreateLibrary(model.Library{Name: "Branch A", UserID: "u1"})
	b := s.CreateBook(model.Book{Code: 101, Name: "Dune", Author: "Herbert", Price: 9.99, LibraryID: lib.ID})

	now = created.Add(time.Hour)
	name := "Dune Messiah"
	updated, ok := s.UpdateBook(b.ID, model.BookPatch{Name: &name})
	require.True(t, ok)
	require.Equal(t, "Dune Messiah", updated.Name)
	require.Equal(t, "Herbert", updated.Author)
	require.Equal(t, 9.99, updated.Price)
	require.Equal(t, created, updated.CreatedAt)
	require.Equal(t, now, updated.UpdatedAt)

	_, ok = s.UpdateBook(42, model.BookPatch{Name: &name})
	require.False(t, ok)
	_, ok = s.UpdateLibrary("missing", model.LibraryPatch{Name: &name})
	require.False(t, ok)
	require.False(t, s.DeleteMember(42))
}

func TestStore_DeleteLibraryCascades(t *testing.T) {
	t.Parallel()
	s := store.New(store.WithClock(fixedClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))))
	a := s.CreateLibrary(model.Library{Name: "A", UserID: "u1"})
	b := s.CreateLibrary(model.Library{Name: "B", UserID: "u1"})

	for _, lib := range []model.Library{a, b} {
		s.CreateBook(model.Book{Code: 1, LibraryID: lib.ID})
		s.CreateBook(model.Book{Code: 2, LibraryID: lib.ID})
		s.CreateMember(model.Member{Code: 1001, LibraryID: lib.ID})
		s.CreateIssue(model.Issue{BookCode: 1, MemberCode: 1001, LibraryID: lib.ID})
	}

	require.True(t, s.DeleteLibrary(a.ID))
	require.Empty(t, s.ListBooks(a.ID))
	require.Empty(t, s.ListMembers(a.ID))
	require.Empty(t, s.ListIssues(a.ID))
	_, ok := s.GetLibrary(a.ID)
	require.False(t, ok)

	require.Len(t, s.ListBooks(b.ID), 2)
	require.Len(t, s.ListMembers(b.ID), 1)
	require.Len(t, s.ListIssues(b.ID), 1)

	require.False(t, s.DeleteLibrary(a.ID))
}

func TestStore_ListScopedByOwner(t *testing.T) {
	t.Parallel()
	s := store.New()
	s.CreateLibrary(model.Library{Name: "A", UserID: "u1"})
	s.CreateLibrary(model.Library{Name: "B", UserID: "u1"})
	s.CreateLibrary(model.Library{Name: "C", UserID: "u2"})

	require.Len(t, s.ListLibraries("u1"), 2)
	require.Len(t, s.ListLibraries("u2"), 1)
	require.Empty(t, s.ListLibraries("u3"))
}

func TestStore_Profiles(t *testing.T) {
	t.Parallel()
	s := store.New()
	p := s.CreateProfile(model.Profile{Email: "a@example.com"})
	require.NotEmpty(t, p.ID)

	found, ok := s.FindProfileByEmail("a@example.com")
	require.True(t, ok)
	require.Equal(t, p.ID, found.ID)

	require.Len(t, s.ListProfiles(p.ID), 1)
	require.Empty(t, s.ListProfiles("other"))

	name := "Alice"
	updated, ok := s.UpdateProfile(p.ID, model.ProfilePatch{FullName: &name})
	require.True(t, ok)
	require.Equal(t, "Alice", *updated.FullName)
	require.True(t, s.DeleteProfile(p.ID))
	require.False(t, s.DeleteProfile(p.ID))
}
