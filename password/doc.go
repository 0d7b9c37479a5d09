// Package password hashes and verifies credentials with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Argon2.NeedsUpgrade] reports hashes made with weaker parameters so the caller can
// re-hash on the next successful login. Storage of hashes is the caller's concern.
package password
