package models

import (
	"net/http"
	"time"
)

// Session is the browser-equivalent state issued at bootstrap: the cookies
// granted by the landing page and the anti-forgery token extracted from it.
// A Session is immutable; a refresh produces a new value.
type Session struct {
	Cookies   []*http.Cookie
	Token     string
	CreatedAt time.Time
}

// HasCookie reports whether a cookie with the given name is present.
func (s *Session) HasCookie(name string) bool {
	if s == nil {
		return false
	}
	for _, c := range s.Cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}
