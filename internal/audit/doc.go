// Package audit implements the append-only audit trail for the control relay.
//
// Role changes (acquire, busy, release, dashboard, disconnect) and failsafe
// edges are written as one JSON object per line. The file is rotated by
// size through lumberjack.
//
// Architecture References:
//   - Audit record: ts, user, session, action, outcome, code, params
package audit
