package identity

import (
	"errors"
	"slices"
	"time"
)

var (
	// ErrEmptyUsername is returned when a record is built without a username.
	ErrEmptyUsername = errors.New("identity: username is required")
	// ErrNotFound is returned by stores when no record exists for a username.
	ErrNotFound = errors.New("identity: not found")
)

// Authority is a granted permission string. Each role maps to exactly one authority.
type Authority string

// Principal is the capability set an authenticated caller exposes to authorization code.
type Principal interface {
	Username() string
	Authorities() []Authority
	CredentialHash() string
	IsAccountNonExpired() bool
	IsAccountNonLocked() bool
	IsCredentialsNonExpired() bool
	IsEnabled() bool
}

// Params carries the fields for New.
type Params struct {
	ID                string
	Username          string
	CredentialHash    string
	Roles             []string
	LastPasswordReset time.Time
}

// UserInfo is an immutable identity record.
//
// A zero LastPasswordReset means the password was never reset.
type UserInfo struct {
	id        string
	username  string
	hash      string
	roles     []string
	lastReset time.Time
}

var _ Principal = (*UserInfo)(nil)

// New validates p and returns a record. Roles are copied in order.
func New(p Params) (*UserInfo, error) {
	if p.Username == "" {
		return nil, ErrEmptyUsername
	}
	return &UserInfo{
		id:        p.ID,
		username:  p.Username,
		hash:      p.CredentialHash,
		roles:     slices.Clone(p.Roles),
		lastReset: p.LastPasswordReset,
	}, nil
}

// ID returns the opaque record identifier. It is never placed in token claims.
func (u *UserInfo) ID() string {
	if u == nil {
		return ""
	}
	return u.id
}

// Username returns the login name embedded as the token subject.
func (u *UserInfo) Username() string {
	if u == nil {
		return ""
	}
	return u.username
}

// CredentialHash returns the stored password hash.
func (u *UserInfo) CredentialHash() string {
	if u == nil {
		return ""
	}
	return u.hash
}

// Roles returns a copy of the role names in their stored order.
func (u *UserInfo) Roles() []string {
	if u == nil {
		return nil
	}
	return slices.Clone(u.roles)
}

// Authorities returns one authority per role, in role order.
func (u *UserInfo) Authorities() []Authority {
	if u == nil || len(u.roles) == 0 {
		return nil
	}
	out := make([]Authority, len(u.roles))
	for i, r := range u.roles {
		out[i] = Authority(r)
	}
	return out
}

// HasAuthority reports whether a is granted.
func (u *UserInfo) HasAuthority(a Authority) bool {
	return u != nil && slices.Contains(u.roles, string(a))
}

// LastPasswordReset is the most recent reset instant, or the zero time if the password was
// never reset. Tokens created before it are revoked.
func (u *UserInfo) LastPasswordReset() time.Time {
	if u == nil {
		return time.Time{}
	}
	return u.lastReset
}

// IsAccountNonExpired always reports true. Records carry no expiry, lock or disable state.
func (u *UserInfo) IsAccountNonExpired() bool { return true }

// IsAccountNonLocked always reports true.
func (u *UserInfo) IsAccountNonLocked() bool { return true }

// IsCredentialsNonExpired always reports true.
func (u *UserInfo) IsCredentialsNonExpired() bool { return true }

// IsEnabled always reports true.
func (u *UserInfo) IsEnabled() bool { return true }

// WithPasswordReset returns a copy of u with LastPasswordReset set to at.
func (u *UserInfo) WithPasswordReset(at time.Time) *UserInfo {
	cp := *u
	cp.roles = slices.Clone(u.roles)
	cp.lastReset = at
	return &cp
}

// WithCredentialHash returns a copy of u carrying hash.
func (u *UserInfo) WithCredentialHash(hash string) *UserInfo {
	cp := *u
	cp.roles = slices.Clone(u.roles)
	cp.hash = hash
	return &cp
}
