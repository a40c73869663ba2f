// Package session issues and rotates login sessions.
//
// A session is a pair of credentials: a short-lived HS256 access token that is
// verified by signature alone, and a long-lived opaque refresh secret whose digest
// is persisted by Store. Every refresh exchanges the presented secret for a new pair
// inside one transaction; presenting an already revoked secret is treated as theft
// and revokes every refresh credential of its owner.
//
// Sweeper deletes credentials once they have expired, independent of revocation.
package session
