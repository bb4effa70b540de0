package mpv

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dexterlb/mpvipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primalradio/primalradio/internal/adapter/eventbus"
	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/logger"
)

// fakeIPC records IPC traffic. onSet runs after each Set, outside any output lock.
type fakeIPC struct {
	mu    sync.Mutex
	calls []string
	onSet func(property string, value interface{})
	err   error
}

func (f *fakeIPC) Call(args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	f.calls = append(f.calls, strings.Join(parts, " "))
	return nil, f.err
}

func (f *fakeIPC) Set(property string, value interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("set %s=%v", property, value))
	hook, err := f.onSet, f.err
	f.mu.Unlock()

	if hook != nil {
		hook(property, value)
	}
	return err
}

func (f *fakeIPC) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestOutput(t *testing.T) (*Output, *fakeIPC, *eventbus.SyncEventBus) {
	t.Helper()
	bus := eventbus.NewSyncEventBus(logger.NewTestLogger())
	t.Cleanup(func() { _ = bus.Close() })

	out := NewOutput(logger.NewTestLogger(), bus, Config{StartTimeout: 200 * time.Millisecond})
	fake := &fakeIPC{}
	out.attach(fake)
	return out, fake, bus
}

func restartOnUnpause(out *Output, fake *fakeIPC) {
	fake.onSet = func(property string, value interface{}) {
		if property == "pause" && value == false {
			out.handleEvent(&mpvipc.Event{Name: "playback-restart"})
		}
	}
}

func endFile(reason interface{}, fileError string) *mpvipc.Event {
	extra := map[string]interface{}{"reason": reason}
	if fileError != "" {
		extra["file_error"] = fileError
	}
	return &mpvipc.Event{Name: "end-file", ExtraData: extra}
}

func TestOutput_PlayWaitsForRestart(t *testing.T) {
	out, fake, _ := newTestOutput(t)
	restartOnUnpause(out, fake)

	require.NoError(t, out.SetSource("https://stream/live.mp3"))
	require.NoError(t, out.Load())
	require.NoError(t, out.Play())

	assert.Equal(t, []string{
		"set pause=true",
		"loadfile https://stream/live.mp3 replace",
		"set pause=false",
	}, fake.recorded())
}

func TestOutput_PlayLoadsWhenNeeded(t *testing.T) {
	out, fake, _ := newTestOutput(t)
	restartOnUnpause(out, fake)

	require.NoError(t, out.SetSource("https://stream/live.mp3"))
	require.NoError(t, out.Play())

	assert.Contains(t, fake.recorded(), "loadfile https://stream/live.mp3 replace")
}

func TestOutput_PlayWithoutSource(t *testing.T) {
	out, _, _ := newTestOutput(t)

	err := out.Play()

	var outErr *domain.OutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, domain.KindUnsupported, outErr.Kind)
}

func TestOutput_PlayFailsOnEndFile(t *testing.T) {
	out, fake, _ := newTestOutput(t)
	fake.onSet = func(property string, value interface{}) {
		if property == "pause" && value == false {
			go out.handleEvent(endFile("error", "loading failed"))
		}
	}

	require.NoError(t, out.SetSource("https://stream/live.mp3"))
	err := out.Play()

	require.Error(t, err)
	assert.True(t, domain.IsNetworkError(err))
}

func TestOutput_PlayTimeout(t *testing.T) {
	out, _, _ := newTestOutput(t)
	require.NoError(t, out.SetSource("https://stream/live.mp3"))

	err := out.Play()

	var outErr *domain.OutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, domain.KindNetwork, outErr.Kind)
	assert.Contains(t, outErr.Message, "timed out")
}

func TestOutput_RestartBeforeUnpause(t *testing.T) {
	out, _, _ := newTestOutput(t)
	require.NoError(t, out.SetSource("https://stream/live.mp3"))
	require.NoError(t, out.Load())

	// mpv finished opening the stream while still paused
	out.handleEvent(&mpvipc.Event{Name: "playback-restart"})

	require.NoError(t, out.Play())
}

func TestOutput_PublishesFailuresWhilePlaying(t *testing.T) {
	out, fake, bus := newTestOutput(t)
	restartOnUnpause(out, fake)

	var published []domain.OutputErrorEvent
	bus.Subscribe(domain.EventOutputError, func(e domain.Event) {
		published = append(published, e.(domain.OutputErrorEvent))
	})

	require.NoError(t, out.SetSource("https://stream/live.mp3"))
	require.NoError(t, out.Play())

	out.handleEvent(&mpvipc.Event{
		Name:      "property-change",
		Data:      true,
		ExtraData: map[string]interface{}{"name": "paused-for-cache"},
	})

	require.Len(t, published, 1)
	assert.Equal(t, "https://stream/live.mp3", published[0].URL)
	var outErr *domain.OutputError
	require.ErrorAs(t, published[0].Error, &outErr)
	assert.Equal(t, domain.KindStalled, outErr.Kind)

	// Not playing any more, so further events are ignored
	out.handleEvent(endFile("eof", ""))
	assert.Len(t, published, 1)
}

func TestOutput_IgnoresEventsWhenIdle(t *testing.T) {
	out, _, bus := newTestOutput(t)

	count := 0
	bus.Subscribe(domain.EventOutputError, func(domain.Event) { count++ })

	out.handleEvent(endFile("error", "loading failed"))
	out.handleEvent(&mpvipc.Event{
		Name:      "property-change",
		Data:      false,
		ExtraData: map[string]interface{}{"name": "paused-for-cache"},
	})

	assert.Equal(t, 0, count)
}

func TestOutput_ControlCommands(t *testing.T) {
	out, fake, _ := newTestOutput(t)

	require.NoError(t, out.SetVolume(0.65))
	require.NoError(t, out.SetMuted(true))
	require.NoError(t, out.Pause())
	require.NoError(t, out.ClearSource())
	require.NoError(t, out.Load()) // no source: nothing to load

	assert.Equal(t, []string{
		"set volume=65",
		"set mute=true",
		"set pause=true",
		"stop",
	}, fake.recorded())
}

func TestOutput_IPCErrorsAreWrapped(t *testing.T) {
	out, fake, _ := newTestOutput(t)
	fake.err = errors.New("broken pipe")

	err := out.SetVolume(0.5)

	var outErr *domain.OutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, "set_volume", outErr.Op)
	assert.ErrorIs(t, err, fake.err)
}

func TestOutput_Close(t *testing.T) {
	out, fake, _ := newTestOutput(t)

	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	assert.Equal(t, []string{"quit"}, fake.recorded())
	assert.ErrorIs(t, out.SetSource("x"), domain.ErrOutputUnavailable)
	assert.ErrorIs(t, out.Play(), domain.ErrOutputUnavailable)
}

func TestOutput_NotStarted(t *testing.T) {
	out := NewOutput(nil, nil, Config{})
	assert.ErrorIs(t, out.Play(), domain.ErrOutputUnavailable)
	assert.NoError(t, out.Close())
}

func TestEndFileReason(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"eof", "eof"},
		{"error", "error"},
		{float64(0), "eof"},
		{float64(1), "stop"},
		{float64(3), "error"},
		{float64(9), "unknown"},
		{nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, endFileReason(tt.in))
		})
	}
}

func TestClassifyEndFile(t *testing.T) {
	tests := []struct {
		name      string
		reason    string
		fileError string
		kind      domain.OutputErrorKind
		failed    bool
	}{
		{"stop", "stop", "", domain.KindUnknown, false},
		{"quit", "quit", "", domain.KindUnknown, false},
		{"redirect", "redirect", "", domain.KindUnknown, false},
		{"live stream ended", "eof", "", domain.KindNetwork, true},
		{"loading failed", "error", "loading failed", domain.KindNetwork, true},
		{"unrecognized format", "error", "unrecognized file format", domain.KindUnsupported, true},
		{"no data", "error", "no audio or video data played", domain.KindUnsupported, true},
		{"aborted", "error", "aborted", domain.KindAborted, true},
		{"unknown", "unknown", "", domain.KindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, failed := classifyEndFile(tt.reason, tt.fileError)
			assert.Equal(t, tt.failed, failed)
			if tt.failed {
				assert.Equal(t, tt.kind, kind)
			}
		})
	}
}
