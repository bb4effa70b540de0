// Package mpv implements the AudioOutput interface by driving an mpv process
// over its JSON IPC socket.
package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dexterlb/mpvipc"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
)

// DefaultStartTimeout bounds how long Play waits for the stream to start.
const DefaultStartTimeout = 10 * time.Second

// observeCacheID is the observe_property id used for paused-for-cache.
const observeCacheID = 1

// Config configures the mpv process.
type Config struct {
	// Executable is the mpv binary (default "mpv")
	Executable string

	// SocketPath is the IPC socket (default in the temp dir)
	SocketPath string

	// StartTimeout bounds a Play call (DefaultStartTimeout when zero)
	StartTimeout time.Duration

	// ExtraArgs are appended to the mpv command line
	ExtraArgs []string
}

// ipc is the part of *mpvipc.Connection used by the output.
type ipc interface {
	Call(arguments ...interface{}) (interface{}, error)
	Set(property string, value interface{}) error
}

// Output plays streams through mpv.
//
// Thread-safety: operations are serialized by opMu. Events from mpv are handled
// on the listener goroutine and only touch the state guarded by mu.
type Output struct {
	// Dependencies
	logger *slog.Logger
	bus    ports.EventBus
	cfg    Config

	// Process and connection
	cmd  *exec.Cmd
	conn *mpvipc.Connection
	ipc  ipc
	done chan struct{}

	// State
	source  string
	loaded  bool
	started bool // playback-restart seen since the last load
	playing bool
	waiter  chan error
	closed  bool

	opMu sync.Mutex
	mu   sync.Mutex
}

// NewOutput creates an output. Start must be called before use.
func NewOutput(logger *slog.Logger, bus ports.EventBus, cfg Config) *Output {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Executable == "" {
		cfg.Executable = "mpv"
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = defaultSocketPath()
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	return &Output{
		logger: logger.With(slog.String("component", "mpv")),
		bus:    bus,
		cfg:    cfg,
	}
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\primalradio-mpv`
	}
	return filepath.Join(os.TempDir(), "primalradio-mpv.sock")
}

// Start launches mpv in idle mode and connects to its IPC socket.
func (o *Output) Start(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.ipc != nil {
		return domain.ErrAlreadyStarted
	}

	if runtime.GOOS != "windows" {
		_ = os.Remove(o.cfg.SocketPath)
	}

	args := []string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--cache=yes",
		"--input-ipc-server=" + o.cfg.SocketPath,
	}
	args = append(args, o.cfg.ExtraArgs...)

	cmd := exec.Command(o.cfg.Executable, args...)
	if err := cmd.Start(); err != nil {
		return domain.NewOutputError("start", "", domain.KindUnknown, "failed to start mpv", err)
	}
	o.logger.Info("mpv started", slog.Int("pid", cmd.Process.Pid))

	conn, err := o.connect(ctx)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return domain.NewOutputError("start", "", domain.KindUnknown, "failed to connect to mpv IPC", err)
	}

	if _, err := conn.Call("observe_property", observeCacheID, "paused-for-cache"); err != nil {
		o.logger.Warn("failed to observe paused-for-cache", slog.Any("error", err))
	}

	o.cmd = cmd
	o.conn = conn
	o.attach(conn)

	done := make(chan struct{})
	o.done = done
	go o.listen(conn, done)
	return nil
}

// connect waits for the socket to accept connections.
func (o *Output) connect(ctx context.Context) (*mpvipc.Connection, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for i := 0; i < 50; i++ {
		conn := mpvipc.NewConnection(o.cfg.SocketPath)
		if lastErr = conn.Open(); lastErr == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, lastErr
}

// attach installs the IPC connection.
func (o *Output) attach(c ipc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ipc = c
}

func (o *Output) listen(conn *mpvipc.Connection, done chan struct{}) {
	defer close(done)

	events, stop := conn.NewEventListener()
	defer close(stop)

	for event := range events {
		o.handleEvent(event)
	}
}

// handleEvent reacts to mpv events. Failures while a Play call is waiting are
// handed to that call; failures during playback are published as OutputErrorEvents.
func (o *Output) handleEvent(event *mpvipc.Event) {
	switch event.Name {
	case "playback-restart":
		o.mu.Lock()
		o.started = true
		waiter := o.waiter
		o.waiter = nil
		o.mu.Unlock()
		if waiter != nil {
			waiter <- nil
		}

	case "end-file":
		reason := endFileReason(event.ExtraData["reason"])
		fileError, _ := event.ExtraData["file_error"].(string)
		kind, failed := classifyEndFile(reason, fileError)
		if !failed {
			return
		}

		message := reason
		if fileError != "" {
			message = fileError
		}
		o.fail(kind, "stream ended: "+message)

	case "property-change":
		name, _ := event.ExtraData["name"].(string)
		if name != "paused-for-cache" {
			return
		}
		if stalled, ok := event.Data.(bool); ok && stalled {
			o.fail(domain.KindStalled, "paused for cache")
		}
	}
}

// fail routes a stream failure to the waiting Play call or to the event bus.
func (o *Output) fail(kind domain.OutputErrorKind, message string) {
	o.mu.Lock()
	waiter := o.waiter
	o.waiter = nil
	wasPlaying := o.playing
	o.playing = false
	url := o.source
	o.mu.Unlock()

	err := domain.NewOutputError("stream", url, kind, message, nil)
	if waiter != nil {
		waiter <- err
		return
	}
	if !wasPlaying {
		o.logger.Debug("ignoring stream event while idle", slog.Any("error", err))
		return
	}

	o.logger.Warn("stream failed", slog.Any("error", err))
	if o.bus != nil {
		o.bus.Publish(domain.NewOutputErrorEvent(url, err))
	}
}

// endFileReason normalizes the end-file reason, which older mpv versions send as a number.
func endFileReason(v interface{}) string {
	switch r := v.(type) {
	case string:
		return r
	case float64:
		switch int(r) {
		case 0:
			return "eof"
		case 1:
			return "stop"
		case 2:
			return "quit"
		case 3:
			return "error"
		case 4:
			return "redirect"
		}
	}
	return "unknown"
}

// classifyEndFile maps an end-file event to an output error kind. failed is
// false for endings the output caused itself (stop, quit, redirect).
// A live stream never reaches a natural end, so eof counts as a dropped connection.
func classifyEndFile(reason, fileError string) (kind domain.OutputErrorKind, failed bool) {
	switch reason {
	case "stop", "quit", "redirect":
		return domain.KindUnknown, false
	case "eof":
		return domain.KindNetwork, true
	case "error":
		msg := strings.ToLower(fileError)
		switch {
		case strings.Contains(msg, "unrecognized file format"),
			strings.Contains(msg, "no audio or video data"),
			strings.Contains(msg, "unsupported"):
			return domain.KindUnsupported, true
		case strings.Contains(msg, "aborted"):
			return domain.KindAborted, true
		default:
			return domain.KindNetwork, true
		}
	default:
		return domain.KindUnknown, true
	}
}

// client returns the IPC connection or ErrOutputUnavailable.
func (o *Output) client() (ipc, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.ipc == nil {
		return nil, domain.ErrOutputUnavailable
	}
	return o.ipc, nil
}

// SetSource records the stream URL. It takes effect on the next Load.
func (o *Output) SetSource(url string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if _, err := o.client(); err != nil {
		return err
	}

	o.mu.Lock()
	o.source = url
	o.loaded = false
	o.mu.Unlock()
	return nil
}

// ClearSource stops playback and forgets the stream URL.
func (o *Output) ClearSource() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	c, err := o.client()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.source = ""
	o.loaded = false
	o.started = false
	o.playing = false
	o.mu.Unlock()

	if _, err := c.Call("stop"); err != nil {
		return domain.NewOutputError("clear_source", "", domain.KindUnknown, "stop failed", err)
	}
	return nil
}

// Load opens a fresh connection to the current source, paused.
// With no source set it does nothing.
func (o *Output) Load() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.load()
}

func (o *Output) load() error {
	c, err := o.client()
	if err != nil {
		return err
	}

	o.mu.Lock()
	url := o.source
	o.loaded = false
	o.started = false
	o.playing = false
	o.mu.Unlock()

	if url == "" {
		return nil
	}

	if err := c.Set("pause", true); err != nil {
		return domain.NewOutputError("load", url, domain.KindUnknown, "pause failed", err)
	}
	if _, err := c.Call("loadfile", url, "replace"); err != nil {
		return domain.NewOutputError("load", url, domain.KindNetwork, "loadfile failed", err)
	}

	o.mu.Lock()
	o.loaded = true
	o.mu.Unlock()
	return nil
}

// Play unpauses and waits until mpv reports that playback started, the stream
// fails, or the start timeout elapses.
func (o *Output) Play() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	c, err := o.client()
	if err != nil {
		return err
	}

	o.mu.Lock()
	url, loaded := o.source, o.loaded
	o.mu.Unlock()

	if url == "" {
		return domain.NewOutputError("play", "", domain.KindUnsupported, "no source set", nil)
	}
	if !loaded {
		if err := o.load(); err != nil {
			return err
		}
	}

	waiter := make(chan error, 1)
	o.mu.Lock()
	started := o.started
	if !started {
		o.waiter = waiter
	}
	o.mu.Unlock()

	if err := c.Set("pause", false); err != nil {
		o.clearWaiter(waiter)
		return domain.NewOutputError("play", url, domain.KindUnknown, "unpause failed", err)
	}

	if !started {
		timer := time.NewTimer(o.cfg.StartTimeout)
		defer timer.Stop()

		select {
		case err := <-waiter:
			if err != nil {
				return err
			}
		case <-timer.C:
			o.clearWaiter(waiter)
			return domain.NewOutputError("play", url, domain.KindNetwork, "timed out waiting for stream", nil)
		}
	}

	o.mu.Lock()
	o.playing = true
	o.mu.Unlock()

	o.logger.Debug("playing", slog.String("url", url))
	return nil
}

func (o *Output) clearWaiter(waiter chan error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.waiter == waiter {
		o.waiter = nil
	}
}

// Pause pauses playback.
func (o *Output) Pause() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	c, err := o.client()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.playing = false
	o.mu.Unlock()

	if err := c.Set("pause", true); err != nil {
		return domain.NewOutputError("pause", "", domain.KindUnknown, "pause failed", err)
	}
	return nil
}

// SetVolume sets the volume (0.0 to 1.0).
func (o *Output) SetVolume(volume float64) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	c, err := o.client()
	if err != nil {
		return err
	}
	if err := c.Set("volume", volume*100); err != nil {
		return domain.NewOutputError("set_volume", "", domain.KindUnknown, "set volume failed", err)
	}
	return nil
}

// SetMuted mutes or unmutes the output without touching the volume.
func (o *Output) SetMuted(muted bool) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	c, err := o.client()
	if err != nil {
		return err
	}
	if err := c.Set("mute", muted); err != nil {
		return domain.NewOutputError("set_muted", "", domain.KindUnknown, "set mute failed", err)
	}
	return nil
}

// Close quits mpv and releases the connection.
func (o *Output) Close() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	c := o.ipc
	waiter := o.waiter
	o.waiter = nil
	o.mu.Unlock()

	if waiter != nil {
		waiter <- domain.ErrOutputUnavailable
	}

	var errs []error
	if c != nil {
		_, _ = c.Call("quit")
	}
	if o.conn != nil {
		if err := o.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mpv IPC: %w", err))
		}
	}
	if o.done != nil {
		select {
		case <-o.done:
		case <-time.After(2 * time.Second):
			o.logger.Warn("mpv event listener did not stop")
		}
	}
	if o.cmd != nil && o.cmd.Process != nil {
		_ = o.cmd.Process.Kill()
		_ = o.cmd.Wait()
	}
	if runtime.GOOS != "windows" {
		_ = os.Remove(o.cfg.SocketPath)
	}

	o.logger.Debug("mpv closed")
	return errors.Join(errs...)
}

// Verify interface compliance at compile time
var _ ports.AudioOutput = (*Output)(nil)
