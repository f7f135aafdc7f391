package model

type AuthEvent string

const (
	EventSignedIn  AuthEvent = "SIGNED_IN"
	EventSignedOut AuthEvent = "SIGNED_OUT"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type Session struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

func UserFromProfile(p Profile) User {
	u := User{ID: p.ID, Email: p.Email, FullName: p.Email}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	return u
}
