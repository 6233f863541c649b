// Package session implements the two-phase transfer session: the control
// state machine that negotiates the client's data port and command, and the
// data state machine that streams a listing or file content as tagged
// packets terminated by a DONE marker.
package session
