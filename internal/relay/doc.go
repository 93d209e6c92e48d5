// Package relay implements the websocket connection handler of the control
// relay.
//
// Each accepted connection gets a session and a reader/writer goroutine
// pair. The reader decodes messages and hands them to the command
// orchestrator; the writer drains the session's outbound queue and sends
// keepalive pings. Every exit path releases the driver slot, drops
// dashboard membership and closes the connection.
package relay
