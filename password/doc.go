// Package password provides argon2id password hashing in PHC string format.
// The reset manager uses it to store new credentials; verification exists
// for the login flows that consume this core's identities.
package password
