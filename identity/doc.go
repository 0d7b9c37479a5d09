// Package identity models the user record tokens are checked against and decodes it from
// its stored BSON document form.
package identity
