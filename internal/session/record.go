package session

import (
	"maps"
	"time"
)

// Record is the server-side state behind a session cookie.
type Record struct {
	ID               string            `json:"id"`
	UserID           string            `json:"userId,omitempty"`
	Role             string            `json:"role,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastActivity     time.Time         `json:"lastActivity"`
	LastRegeneration time.Time         `json:"lastRegeneration"`
	Regenerated      bool              `json:"regenerated"`
	UserAgent        string            `json:"userAgent,omitempty"`
	IPAddress        string            `json:"ipAddress,omitempty"`
	Values           map[string]string `json:"values,omitempty"`
}

// Authenticated reports whether a user is logged in on this session.
func (r *Record) Authenticated() bool {
	return r != nil && r.UserID != ""
}

// IsAdmin reports whether the session belongs to an administrator.
func (r *Record) IsAdmin() bool {
	return r.Authenticated() && r.Role == "admin"
}

// Value returns a stored value or "".
func (r *Record) Value(key string) string {
	if r == nil || r.Values == nil {
		return ""
	}
	return r.Values[key]
}

// SetValue stores a string value on the record.
func (r *Record) SetValue(key, value string) {
	if r.Values == nil {
		r.Values = make(map[string]string)
	}
	r.Values[key] = value
}

// Clone returns a deep copy so callers never share state with the store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Values != nil {
		c.Values = maps.Clone(r.Values)
	}
	return &c
}
