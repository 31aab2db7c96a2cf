// Package gtp drives an engine child process over the Go Text Protocol: one
// command line in, one response block out.
package gtp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrExited is returned by Send once the engine process has exited.
var ErrExited = errors.New("gtp: engine exited")

// Response is one parsed GTP response block.
type Response struct {
	ID      int
	Error   bool
	Content string
}

// Controller owns one engine process and serializes commands to it.
type Controller struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	log   zerolog.Logger

	sem    chan struct{} // size 1: one command in flight
	nextID int

	done    chan struct{}
	stopped sync.Once
}

// Option customizes Start.
type Option func(*Controller)

// WithLogger sends engine stderr and lifecycle lines to l.
func WithLogger(l zerolog.Logger) Option { return func(c *Controller) { c.log = l } }

// Start launches name with args and begins reading its stdout. The process is
// not tied to ctx; ctx only bounds the start itself.
func Start(ctx context.Context, name string, args []string, opts ...Option) (*Controller, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("gtp: empty executable path")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Controller{
		lines: make(chan string, 64),
		sem:   make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("gtp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("gtp: stdout pipe: %w", err)
	}
	cmd.Stderr = &lineLogger{log: c.log}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("gtp: start %s: %w", name, err)
	}
	c.cmd = cmd
	c.stdin = stdin
	c.log = c.log.With().Int("pid", cmd.Process.Pid).Logger()
	c.log.Debug().Str("exec", name).Strs("args", args).Msg("engine started")

	go c.readLoop(stdout)
	go func() {
		err := cmd.Wait()
		c.log.Debug().AnErr("exit", err).Msg("engine exited")
		close(c.done)
	}()
	return c, nil
}

func (c *Controller) readLoop(r io.Reader) {
	defer close(c.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		c.lines <- strings.TrimRight(sc.Text(), "\r")
	}
}

// Pid returns the OS process id.
func (c *Controller) Pid() int { return c.cmd.Process.Pid }

// Done is closed once the process has exited and been reaped.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Send writes one command and waits for its response block.
func (c *Controller) Send(ctx context.Context, command string) (Response, error) {
	command = strings.TrimSpace(command)
	if command == "" || strings.ContainsAny(command, "\r\n") {
		return Response{}, fmt.Errorf("gtp: invalid command %q", command)
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.done:
		return Response{}, ErrExited
	}
	defer func() { <-c.sem }()
	c.nextID++
	id := c.nextID
	if _, err := fmt.Fprintf(c.stdin, "%d %s\n", id, command); err != nil {
		return Response{}, fmt.Errorf("gtp: write: %w", err)
	}
	var block []string
	for {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return Response{}, ErrExited
			}
			if block == nil {
				if !strings.HasPrefix(line, "=") && !strings.HasPrefix(line, "?") {
					// banner or trailing blank line from a previous response
					continue
				}
				block = []string{line}
				continue
			}
			if line == "" {
				resp := parseResponse(block)
				// responses to abandoned commands are dropped
				if resp.ID != 0 && resp.ID != id {
					block = nil
					continue
				}
				return resp, nil
			}
			block = append(block, line)
		}
	}
}

// parseResponse parses "=<id> content" / "?<id> message" plus continuation lines.
func parseResponse(block []string) Response {
	first := block[0]
	resp := Response{Error: first[0] == '?'}
	rest := first[1:]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		resp.ID, _ = strconv.Atoi(rest[:i])
	}
	lines := append([]string{strings.TrimSpace(rest[i:])}, block[1:]...)
	resp.Content = strings.TrimSpace(strings.Join(lines, "\n"))
	return resp
}

// Stop asks the engine to quit and waits for it to exit. When ctx expires
// first the process is killed; Stop always returns after the process is gone.
func (c *Controller) Stop(ctx context.Context) error {
	var err error
	c.stopped.Do(func() { err = c.stop(ctx) })
	return err
}

func (c *Controller) stop(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	quitCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-quitCtx.Done():
		}
	}()
	_, quitErr := c.Send(quitCtx, "quit")
	cancel()
	_ = c.stdin.Close()

	select {
	case <-c.done:
		c.log.Debug().Msg("engine exited")
		return nil
	case <-ctx.Done():
	}
	c.log.Warn().AnErr("quit_err", quitErr).Msg("engine did not exit in time, terminating")
	_ = c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-c.done:
		return nil
	case <-time.After(2 * time.Second):
	}
	_ = c.cmd.Process.Kill()
	<-c.done
	return ctx.Err()
}

// lineLogger forwards complete stderr lines to the debug log.
type lineLogger struct {
	log zerolog.Logger
	buf []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimRight(string(lw.buf[:idx]), "\r"); line != "" {
			lw.log.Debug().Str("stream", "stderr").Msg(line)
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
