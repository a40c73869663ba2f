// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are stored in the PHC string form
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
// so that the work factor travels with every hash and can be raised later
// without invalidating existing accounts.
//
// Verify treats the encoded hash as untrusted input: malformed strings and
// parameters far above the configured cost report a mismatch instead of an error.
package password
