// Package server implements the dairyops HTTP API surface.
//
// Owns:
//   - HTTP routing, handlers, and request/response contracts
//   - Caller authentication (bearer token via identity.Provider) and admin resolution
//   - Webhook signature checking on the raw request body
//
// Does not own:
//   - Storage internals (store.Store implementations)
//   - Token issuance or session lifecycle (identity provider)
//
// Invariants:
//   - JSON responses go through writeJSON / writeErr
//   - Every handler authenticates before validating input, and validates
//     input before checking the admin role: 401, then 400, then 403
//   - Store and provider failures surface as 500 with details only in logs
package server
