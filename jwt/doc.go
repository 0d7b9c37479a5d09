// Package jwt issues and checks HS512-signed bearer tokens that carry a subject, an
// issuance instant in milliseconds ("created") and an expiry ("exp").
//
// Extraction methods return typed errors classified by [KindOf]. The boolean predicates
// (IsTokenExpired, CanTokenBeRefreshed, ValidateToken) fail closed: any parse or signature
// failure makes them report "expired", "not refreshable" and "invalid".
package jwt
