package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Send issues one command and waits for the response.
func Send(socketPath string, cmd Command, timeout time.Duration) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("error connecting to daemon socket (%s): %w", socketPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return Response{}, fmt.Errorf("error sending command: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("error receiving response: %w", err)
	}
	return resp, nil
}

// Attach sends the attach command and calls onFrame for every streamed
// snapshot until ctx is done, the daemon closes the stream or onFrame returns
// an error.
func Attach(ctx context.Context, socketPath string, onFrame func(Frame) error) error {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	conn, err := d.DialContext(dialCtx, "unix", socketPath)
	cancel()
	if err != nil {
		return fmt.Errorf("error connecting to daemon socket (%s): %w", socketPath, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(Command{Name: CmdAttach}); err != nil {
		return fmt.Errorf("error sending command: %w", err)
	}

	dec := json.NewDecoder(conn)
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return fmt.Errorf("error receiving response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("attach refused: %s", resp.Message)
	}

	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("error reading frame: %w", err)
		}
		if err := onFrame(f); err != nil {
			return err
		}
	}
}
