package protocol

import "fmt"

// Command is a lifecycle command sent from the controller process to the
// worker's supervisor loop. The set is closed: anything else on the wire is
// a protocol error.
type Command string

const (
	CommandStartKolibri Command = "START_KOLIBRI"
	CommandStopKolibri  Command = "STOP_KOLIBRI"
	CommandShutdown     Command = "SHUTDOWN"
)

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	switch c {
	case CommandStartKolibri, CommandStopKolibri, CommandShutdown:
		return true
	}
	return false
}

// UnknownCommandError reports a well-formed envelope carrying a command name
// outside the closed set. Distinguishable from channel closure and from
// malformed payloads.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// PayloadError reports a line that could not be decoded as a command
// envelope. Like UnknownCommandError it is a protocol error: the peers no
// longer agree on the wire format. The offending line has been consumed.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed command payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }
