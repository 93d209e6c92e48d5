// Package auth implements token verification for the control relay.
//
// Two modes are supported. In shared mode the token is compared in constant
// time against a single shared secret and grants every scope. In jwt mode
// the token is an HS256 JWT signed with the shared secret; its "sub" claim
// names the operator and its scopes limit what the connection may do.
//
// Architecture References:
//   - Scopes: control (drive, acquire, release), telemetry (dashboard),
//     read (status API)
//   - HTTP: Authorization: Bearer <token> on every request except /health
package auth
