// Package host runs the MV2Host application against generated scripts.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gogf/gf/v2/os/gproc"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"

	"github.com/mikesmitty/mv2/mxr"
)

// ErrBusy is returned when a run is started while another one is in flight.
var ErrBusy = errors.New("host: a run is already in progress")

// Opts locates the host application and the sensor it drives.
type Opts struct {
	// Executable is the MV2Host binary. A bare name is looked up in PATH.
	Executable string
	// Schema is the XSD the host validates scripts against.
	Schema string
	// Port is the serial port of the Arduino carrying the MV2.
	Port string
	// Timeout bounds a single run. When it expires the host is interrupted
	// like Halt does, and Measure returns the rows printed so far together
	// with context.DeadlineExceeded. Scripts with a repeat count of 0 run
	// until interrupted.
	Timeout time.Duration
}

func DefaultOptions() *Opts {
	return &Opts{
		Executable: "Tag_18_06_27_C/MV2/binaries/linux/MV2Host",
		Schema:     "Tag_18_06_27_C/MV2/host/script/MV2ScriptSchema.xsd",
		Port:       "/dev/ttyACM0",
	}
}

// ExitError reports a run that finished with a non-zero exit code.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("host: exit code %d", e.Code)
	}
	return fmt.Sprintf("host: exit code %d: %s", e.Code, msg)
}

// Result holds the values printed by one run.
type Result struct {
	// Rows are the CSV lines printed by the host, one per measurement
	// iteration. Empty cells are Missing.
	Rows [][]int
	// MXRPath is the artifact the host was asked to write.
	MXRPath string
	// Interrupted is set when the run was stopped by Halt, the timeout or
	// the context rather than by the end of the script.
	Interrupted bool
}

// Host drives MV2Host. Only one run executes at a time.
type Host struct {
	opts Opts
	exe  string
	mxr  *mxr.Allocator

	run sync.Mutex

	mu     sync.Mutex
	proc   *gproc.Process
	halted bool
}

func New(opts *Opts, alloc *mxr.Allocator) (*Host, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch {
	case opts.Executable == "":
		return nil, errors.New("host: executable is required")
	case opts.Schema == "":
		return nil, errors.New("host: schema is required")
	case opts.Port == "":
		return nil, errors.New("host: port is required")
	}
	exe, err := exec.LookPath(opts.Executable)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	if alloc == nil {
		alloc = mxr.NewAllocator("")
	}
	return &Host{opts: *opts, exe: exe, mxr: alloc}, nil
}

func (h *Host) String() string {
	return fmt.Sprintf("MV2Host{%s}", h.opts.Port)
}

// Measure runs script and parses the comma separated values the host prints.
// An interrupted run still returns the rows printed before the interrupt;
// when the interrupt came from ctx or the timeout, the context error is
// returned with them.
func (h *Host) Measure(ctx context.Context, script string) (*Result, error) {
	r, err := h.invoke(ctx, script)
	if r == nil {
		return nil, err
	}
	// A host killed by the interrupt has no exit code (-1).
	if r.code > 0 || (r.code != 0 && !r.interrupted) {
		if err != nil {
			return nil, err
		}
		return nil, &ExitError{Code: r.code, Stderr: r.stderr}
	}
	rows, perr := ParseOutput(r.stdout)
	if perr != nil {
		if err != nil {
			return nil, err
		}
		return nil, h.wrap(perr)
	}
	return &Result{Rows: rows, MXRPath: r.mxrPath, Interrupted: r.interrupted}, err
}

// Status runs script and only reports the exit code of the host.
func (h *Host) Status(ctx context.Context, script string) (int, error) {
	r, err := h.invoke(ctx, script)
	if r == nil {
		return -1, err
	}
	return r.code, err
}

// Halt interrupts the run in flight, if any. The host handles SIGINT by
// finishing the current iteration, printing "Interrupt received!" and
// exiting 0; the run then completes normally with Result.Interrupted set.
func (h *Host) Halt() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return nil
	}
	h.halted = true
	return interrupt(h.proc)
}

type runOutput struct {
	stdout      string
	stderr      string
	code        int
	mxrPath     string
	interrupted bool
}

// invoke returns a nil output only when the host could not be started. A run
// interrupted through ctx or the timeout is returned with the context error.
func (h *Host) invoke(ctx context.Context, script string) (*runOutput, error) {
	if !h.run.TryLock() {
		return nil, ErrBusy
	}
	defer h.run.Unlock()

	if _, err := os.Stat(script); err != nil {
		return nil, h.wrap(err)
	}
	mxrPath, err := h.mxr.Next("")
	if err != nil {
		return nil, h.wrap(err)
	}

	runCtx := ctx
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	p := gproc.NewProcess(h.exe, []string{script, h.opts.Schema, h.opts.Port, mxrPath})
	p.Stdin = nil
	p.Stdout = &stdout
	p.Stderr = &stderr

	logger := log.WithFields(log.Fields{"script": script, "port": h.opts.Port, "mxr": mxrPath})
	logger.Debug("starting MV2Host")
	start := time.Now()
	if _, err := p.Start(runCtx); err != nil {
		h.mxr.Release(mxrPath)
		return nil, h.wrap(err)
	}
	h.setProc(p)

	done := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			if err := interrupt(p); err != nil {
				logger.Warnf("interrupt MV2Host: %v", err)
			}
		case <-done:
		}
	}()

	err = p.Cmd.Wait()
	close(done)
	halted := h.setProc(nil)

	r := &runOutput{
		stdout:      stdout.String(),
		stderr:      stderr.String(),
		mxrPath:     mxrPath,
		interrupted: halted || runCtx.Err() != nil,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, h.wrap(err)
		}
		r.code = exitErr.ExitCode()
	}
	logger.WithFields(log.Fields{
		"code":        r.code,
		"elapsed":     time.Since(start),
		"interrupted": r.interrupted,
	}).Debug("MV2Host finished")

	if runCtx.Err() != nil {
		return r, h.wrap(runCtx.Err())
	}
	return r, nil
}

// setProc records the running process and reports whether Halt was called
// on the one it replaces.
func (h *Host) setProc(p *gproc.Process) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	halted := h.halted
	h.proc = p
	h.halted = false
	return halted
}

func interrupt(p *gproc.Process) error {
	if p.Cmd.Process == nil {
		return nil
	}
	if err := p.Cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		// os.Interrupt is not deliverable on Windows.
		return p.Cmd.Process.Kill()
	}
	return nil
}

func (h *Host) wrap(err error) error {
	return fmt.Errorf("host: %s: %w", h.opts.Port, err)
}

var _ conn.Resource = &Host{}
