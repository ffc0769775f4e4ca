package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field names owned by the store. Callers cannot set them through attributes.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldEmail     = "email"
)

// Attributes holds the caller-supplied fields of a user.
type Attributes map[string]any

// User represents a single record in the users collection.
type User struct {
	ID         int64
	Attributes Attributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsProtectedField reports whether name is assigned by the store.
func IsProtectedField(name string) bool {
	switch name {
	case FieldID, FieldCreatedAt, FieldUpdatedAt:
		return true
	}
	return false
}

// Sanitize returns a copy of attrs without the store-owned fields.
func (a Attributes) Sanitize() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		if IsProtectedField(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Merge returns a copy of a overlaid with patch. Protected fields in patch are ignored.
func (a Attributes) Merge(patch Attributes) Attributes {
	out := a.Sanitize()
	for k, v := range patch.Sanitize() {
		out[k] = v
	}
	return out
}

// String returns the attribute as a string when it holds one.
func (a Attributes) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

// Email returns the email attribute, or "" when it is missing or not a string.
func (u User) Email() string {
	email, _ := u.Attributes.String(FieldEmail)
	return email
}

// Clone returns a deep enough copy that the caller may mutate freely.
func (u User) Clone() User {
	out := u
	out.Attributes = make(Attributes, len(u.Attributes))
	for k, v := range u.Attributes {
		out.Attributes[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// MarshalJSON renders the user as a flat object: attributes plus id and timestamps.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Attributes)+3)
	for k, v := range u.Attributes {
		if IsProtectedField(k) {
			continue
		}
		out[k] = v
	}
	out[FieldID] = u.ID
	out[FieldCreatedAt] = u.CreatedAt.Format(time.RFC3339Nano)
	out[FieldUpdatedAt] = u.UpdatedAt.Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var parsed User
	if v, ok := raw[FieldID].(float64); ok {
		parsed.ID = int64(v)
	}
	for name, dst := range map[string]*time.Time{
		FieldCreatedAt: &parsed.CreatedAt,
		FieldUpdatedAt: &parsed.UpdatedAt,
	} {
		s, ok := raw[name].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = ts
	}
	parsed.Attributes = Attributes(raw).Sanitize()

	*u = parsed
	return nil
}
