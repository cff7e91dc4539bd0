package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSendNextRoundTrip(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pr.Close(); _ = pw.Close() })

	w := NewWriter(pw)
	r := NewReader(pr)

	sent := []Command{CommandStartKolibri, CommandStopKolibri, CommandShutdown}
	go func() {
		for _, cmd := range sent {
			_ = w.Send(cmd)
		}
		_ = pw.Close()
	}()

	for i, want := range sent {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("Next %d = %q, want %q (order must be preserved)", i, got, want)
		}
	}

	if _, err := r.Next(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("after close: got %v, want ErrChannelClosed", err)
	}
}

func TestNextEOF(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(""))
	if _, err := r.Next(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("got %v, want ErrChannelClosed", err)
	}
}

func TestNextUnknownCommand(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(`{"command":"REBOOT"}` + "\n"))
	_, err := r.Next()

	var unknown *UnknownCommandError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownCommandError", err)
	}
	if unknown.Name != "REBOOT" {
		t.Fatalf("unknown.Name = %q", unknown.Name)
	}
	if errors.Is(err, ErrChannelClosed) {
		t.Fatal("unknown command must not look like channel closure")
	}
}

func TestNextMalformedPayload(t *testing.T) {
	t.Parallel()

	tests := []string{
		"not json\n",
		`{"command":"START_KOLIBRI","extra":1}` + "\n",
	}
	for _, input := range tests {
		r := NewReader(strings.NewReader(input))
		_, err := r.Next()
		var payload *PayloadError
		if !errors.As(err, &payload) {
			t.Fatalf("input %q: got %v, want PayloadError", input, err)
		}
		if errors.Is(err, ErrChannelClosed) {
			t.Fatalf("input %q: malformed payload must not look like channel closure", input)
		}
		var unknown *UnknownCommandError
		if errors.As(err, &unknown) {
			t.Fatalf("input %q: malformed payload must not decode as unknown command", input)
		}
	}
}

func TestNextRecoversAfterMalformedLine(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("garbage\n\n" + `{"command":"SHUTDOWN"}` + "\n"))

	if _, err := r.Next(); err == nil {
		t.Fatal("expected decode error for garbage line")
	}
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next after malformed line: %v", err)
	}
	if got != CommandShutdown {
		t.Fatalf("got %q, want SHUTDOWN", got)
	}
}

func TestNextTruncatedPayload(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(`{"command":"STA`))
	if _, err := r.Next(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("truncated stream should read as closed, got %v", err)
	}
}

func TestSendInvalidCommand(t *testing.T) {
	t.Parallel()

	w := NewWriter(io.Discard)
	if err := w.Send(Command("REBOOT")); err == nil {
		t.Fatal("expected error for invalid command")
	}
}

func TestSendClosedPipe(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	_ = pr.Close()

	w := NewWriter(pw)
	if err := w.Send(CommandShutdown); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("got %v, want ErrChannelClosed", err)
	}
}
