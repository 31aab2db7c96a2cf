package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Worker is a running worker process.
type Worker interface {
	Pid() int
	// Wait blocks until the process exits. It is called exactly once.
	Wait() error
	Signal(sig os.Signal) error
}

// Spawner starts worker processes. slot identifies the supervised position
// (0..Workers-1) and is stable across restarts.
type Spawner interface {
	Spawn(ctx context.Context, slot int) (Worker, error)
}

// WorkerSlotEnv carries the slot number into the worker's environment.
const WorkerSlotEnv = "DEEPLEELA_WORKER_SLOT"

// ExecSpawner re-executes a binary (normally the running one) as a worker.
type ExecSpawner struct {
	// Path is the executable; empty means os.Executable().
	Path string
	// Args follow argv[0], e.g. {"worker", "--config", "config.json"}.
	Args []string
	// Label replaces argv[0] so process listings show the role.
	Label  string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

func (s ExecSpawner) Spawn(ctx context.Context, slot int) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	// not CommandContext: shutdown sends SIGTERM and waits instead of killing
	cmd := exec.Command(path, s.Args...)
	if s.Label != "" {
		cmd.Args[0] = s.Label
	}
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, WorkerSlotEnv+"="+strconv.Itoa(slot))
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return execWorker{cmd}, nil
}

type execWorker struct{ cmd *exec.Cmd }

func (w execWorker) Pid() int                 { return w.cmd.Process.Pid }
func (w execWorker) Wait() error              { return w.cmd.Wait() }
func (w execWorker) Signal(s os.Signal) error { return w.cmd.Process.Signal(s) }

// ExitCode extracts a process exit code from a Wait error; -1 when the
// process was killed by a signal or the error is not an exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// workerSet tracks the live worker of each slot for Pids and the gauge.
type workerSet struct {
	mu   sync.Mutex
	live map[int]Worker
}

func newWorkerSet() *workerSet { return &workerSet{live: make(map[int]Worker)} }

func (ws *workerSet) add(slot int, w Worker) {
	ws.mu.Lock()
	ws.live[slot] = w
	ws.mu.Unlock()
	workersLive.Inc()
}

func (ws *workerSet) remove(slot int) {
	ws.mu.Lock()
	delete(ws.live, slot)
	ws.mu.Unlock()
	workersLive.Dec()
}

// pids returns the live worker pids by slot.
func (ws *workerSet) pids() map[int]int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make(map[int]int, len(ws.live))
	for slot, w := range ws.live {
		out[slot] = w.Pid()
	}
	return out
}
