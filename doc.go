// Package authcore is the request-authentication and credential-lifecycle
// core of the feedlane platform. It verifies bearer credentials on every
// inbound request, resolves them into caller identities without blocking
// the request pipeline, and manages the auxiliary credential artifacts:
// password-reset tokens, two-factor secrets, and backup codes.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Core], [Builder], [Config],
// the [ContextResolver], and the value types handlers consume. Persistence
// lives behind the [CredentialStore] and [ResetTokenStore] interfaces
// (the store package ships the Postgres implementation); throttle and
// random-material plumbing lives under internal/ and is never exported.
//
// Business authorization is deliberately out of scope: the trust gate and
// resolver only attach an identity when a valid token was presented.
// Rejecting requests that lack one is the job of the authorization layer
// downstream.
//
// # Concurrency
//
// Core methods are safe to call from any number of goroutines after
// [Builder.Build]. Token validation is pure computation and never blocks.
// Single-use consumption (reset tokens, backup codes) relies on atomic
// conditional writes in the store, not in-process locks.
package authcore
