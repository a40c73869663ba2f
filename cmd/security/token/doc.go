// Package token generates opaque refresh secrets and derives the digests that
// stand in for them in storage.
//
// Plain secrets are handed to clients exactly once; only Hasher output is persisted.
// Production deployments configure an HMAC key so that a leaked table cannot be
// matched against guessed secrets offline.
package token
