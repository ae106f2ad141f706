// Package token implements the signed bearer token codec used by the
// authentication core: issuance, subject extraction, and validation of
// time-bounded tokens. Tokens are never stored server-side; a Codec is a
// pure function of its key, clock, and input.
package token
