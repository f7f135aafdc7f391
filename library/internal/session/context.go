package session

import (
	"context"

	"github.com/Astemirdum/library-admin/library/internal/model"
)

type sessionKey struct{}

// NewContext binds s to the request. Queries run with the returned context
// see the rows of s.User only.
func NewContext(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, &s)
}

func FromContext(ctx context.Context) *model.Session {
	s, _ := ctx.Value(sessionKey{}).(*model.Session)
	return s
}

// UserID returns the id of the user bound to ctx or an empty string.
func UserID(ctx context.Context) string {
	if s := FromContext(ctx); s != nil {
		return s.User.ID
	}
	return ""
}
