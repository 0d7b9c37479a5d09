// Package jwtauth issues, validates and refreshes HS512 bearer tokens bound to a username
// and an issuance instant, checked against identity records loaded from a store.
//
// The stateless rules live in the jwt subpackage. [Engine] adds identity lookup, password
// login, metrics and audit events around them:
//
//	engine, err := jwtauth.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithLogger(logger).
//		Build()
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Validity and refresh eligibility
//
// Authenticate and Refresh apply separate predicates ([jwt.Codec.CheckToken] and
// [jwt.Codec.CheckRefreshable]). Both refuse tokens created before the identity's last
// password reset and tokens past their exp, so a password reset revokes every earlier
// token without a revocation list.
package jwtauth
