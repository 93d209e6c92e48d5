// Package watchdog implements the failsafe timer of the control relay.
//
// The watchdog ticks for the life of the process. Whenever no driver frame
// has been forwarded within the failsafe deadline it sends the neutral frame
// to the actuator, and keeps re-sending it on every tick until driver input
// resumes. It holds no per-connection state.
package watchdog
