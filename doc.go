// Package identity reconciles who the current actor is and what they are
// entitled to, across heterogeneous backend payloads and concurrent
// refreshes.
//
// Resolution pipeline:
//   - Coordinator fetches the raw payload, normalizes it into the canonical
//     Identity, resolves the viewing mode (kid profile, family dashboard),
//     computes profile selector and entitlement state, and publishes one
//     atomic State. Overlapping runs are serialized by a generation counter
//     so a slow response can never overwrite fresher data.
//   - EntitlementEngine derives a single SubscriptionState from whatever
//     fields the backend happened to send, short-circuiting for kid profiles
//     and family members before it reaches the network. Failed refreshes
//     keep the previous snapshot and raise a flag instead of flapping access.
//   - SessionRegistry applies optimistic device-session terminations and
//     rolls them back when the backend rejects the call. The current session
//     is never terminated locally.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing resolution,
//     kid-mode, profile selection, entitlement and session events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking resolution.
//
// Backends are plain interfaces; provider/rest implements them over a JSON
// HTTP API and adapters/featuregate exposes the published state to feature
// gates.
package identity
