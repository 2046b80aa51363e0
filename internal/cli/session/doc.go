// Package session is the client-side authority for "is the caller
// authenticated, and with what roles".
//
// A [Guard] owns the bearer token and the decoded identity, persists them
// through an [auth.Storage], and is the only code that mutates them. Every
// transition is one of:
//
//	Anonymous     -> Authenticated  CompleteLogin
//	Authenticated -> Anonymous      Logout, OnUnauthorizedResponse, expiry detected
//
// Route decisions are pure: [EvaluateRouteAccess] maps an access [Class] and a
// [Session] snapshot to a [Decision] and has no side effects. [Guard.Navigate]
// wraps it with the fail-closed expiry check.
//
// The guard never renders anything. Transitions are reported to registered
// [Observer]s as typed [Outcome] values; the CLI turns them into messages.
package session
