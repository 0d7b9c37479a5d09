// Package store holds identity store implementations. Each subpackage satisfies the
// root IdentityStore interface and reports unknown usernames as identity.ErrNotFound.
package store
