// Package identity owns the account records that sessions are issued for.
//
// An identity is an email address, a password hash produced by security/password,
// a display name and a role. The session subsystem reads identities through Store
// and never mutates them after creation.
package identity
