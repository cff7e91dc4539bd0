package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"
)

// ErrChannelClosed is returned once the command channel has reached EOF or
// the pipe behind it has broken. Both conditions mean the peer is gone and
// no further commands will ever arrive.
var ErrChannelClosed = errors.New("command channel closed")

type envelope struct {
	Command string `json:"command"`
}

// Writer sends commands over the channel, one JSON object per line, in call
// order. Single producer.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send encodes one command. A broken or closed pipe surfaces as
// ErrChannelClosed so callers can treat it like a vanished peer.
func (w *Writer) Send(cmd Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("refusing to send invalid command %q", cmd)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(envelope{Command: string(cmd)}); err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		if isClosedErr(err) {
			return ErrChannelClosed
		}
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Reader consumes commands from the channel. Single consumer. Framing is one
// JSON object per line so a malformed payload consumes exactly one line and
// the caller may keep reading.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next blocks until a command arrives. It returns ErrChannelClosed on EOF or
// a broken pipe, *UnknownCommandError for an out-of-set command name,
// *PayloadError for a malformed payload (the offending line is consumed),
// and a plain error for a transport read failure.
func (r *Reader) Next() (Command, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil {
			// A partial trailing line means the peer died mid-write;
			// either way no complete command will ever arrive.
			if errors.Is(err, io.EOF) || isClosedErr(err) {
				return "", ErrChannelClosed
			}
			return "", fmt.Errorf("read command: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return decodeCommand(line)
	}
}

func decodeCommand(line []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields() // Strict parsing

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return "", &PayloadError{Err: err}
	}

	cmd := Command(env.Command)
	if !cmd.Valid() {
		return "", &UnknownCommandError{Name: env.Command}
	}
	return cmd, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, fs.ErrClosed)
}
