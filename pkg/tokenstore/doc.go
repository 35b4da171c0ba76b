// Package tokenstore holds the single Credential of a client session.
//
// A TokenStore keeps an in-memory cache in front of a per-tab Storage and performs a
// one-time migration of values found in a legacy persistent Storage. A store built
// without per-tab storage behaves as a non-browser context: every operation is a no-op.
package tokenstore
