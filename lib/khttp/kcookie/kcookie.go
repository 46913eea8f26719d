// Package kcookie provides modifiers to tweak http.Cookie objects.
//
// Libraries that set cookies accept a list of Modifier so the caller can
// adjust attributes (Secure, Domain, expiry) without the library growing
// one parameter per attribute.
package kcookie

import (
	"net/http"
	"time"
)

// Modifier applies a change to an http.Cookie, returning the same cookie.
type Modifier func(*http.Cookie) *http.Cookie

// Modifiers is a list of Modifier applied in order.
type Modifiers []Modifier

// Apply runs all modifiers against the cookie.
func (mods Modifiers) Apply(cookie *http.Cookie) *http.Cookie {
	for _, m := range mods {
		cookie = m(cookie)
	}
	return cookie
}

// WithSecure marks the cookie as only transmittable over https.
func WithSecure(secure bool) Modifier {
	return func(c *http.Cookie) *http.Cookie {
		c.Secure = secure
		return c
	}
}

// WithDomain sets the domain the cookie is scoped to.
func WithDomain(domain string) Modifier {
	return func(c *http.Cookie) *http.Cookie {
		c.Domain = domain
		return c
	}
}

// WithPath sets the path the cookie is scoped to.
func WithPath(path string) Modifier {
	return func(c *http.Cookie) *http.Cookie {
		c.Path = path
		return c
	}
}

// WithExpires sets the expiry timestamp of the cookie.
func WithExpires(expires time.Time) Modifier {
	return func(c *http.Cookie) *http.Cookie {
		c.Expires = expires
		return c
	}
}

// WithMaxAge sets the MaxAge attribute, in seconds.
func WithMaxAge(seconds int) Modifier {
	return func(c *http.Cookie) *http.Cookie {
		c.MaxAge = seconds
		return c
	}
}

// WithSameSite sets the SameSite policy of the cookie.
func WithSameSite(mode http.SameSite) Modifier {
	return func(c *http.Cookie) *http.Cookie {
		c.SameSite = mode
		return c
	}
}
