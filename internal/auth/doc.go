// Package auth provides token authentication for the State Store API.
//
// Callers present an HS256 JWT signed with the configured secret. Claims
// carry a role and an optional list of rooms:
//   - reader may query state and open the change stream
//   - operator may also write state
//
// A token without rooms is valid for every room. A token naming rooms is
// only accepted by a State Store serving one of them.
package auth
