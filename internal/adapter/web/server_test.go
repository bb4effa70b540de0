package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primalradio/primalradio/internal/adapter/eventbus"
	"github.com/primalradio/primalradio/internal/directory"
	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/logger"
	"github.com/primalradio/primalradio/internal/metrics"
	"github.com/primalradio/primalradio/internal/schedule"
	"github.com/primalradio/primalradio/internal/service"
	"github.com/primalradio/primalradio/internal/testutil"
)

type stubPlayback struct {
	mu    sync.Mutex
	state domain.PlaybackState
}

func (s *stubPlayback) GetState() domain.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubPlayback) set(state domain.PlaybackState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

type serverFixture struct {
	server   *Server
	dir      *directory.Directory
	schedule *schedule.Resolver
	metadata *service.MetadataService
	playback *stubPlayback
	bus      *eventbus.SyncEventBus
	clk      *clockwork.FakeClock
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	resolver, err := schedule.NewDefaultResolver()
	require.NoError(t, err)

	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC))
	bus := eventbus.NewSyncEventBus(logger.NewTestLogger())
	dir := directory.New()
	m := metrics.New()

	md := service.NewMetadataService(logger.NewTestLogger(), nil, resolver, nil, clk, m, service.MetadataConfig{
		Endpoints: dir.StatusEndpoints(),
	})

	f := &serverFixture{
		dir:      dir,
		schedule: resolver,
		metadata: md,
		playback: &stubPlayback{state: domain.PlaybackState{Volume: 80}},
		bus:      bus,
		clk:      clk,
	}
	f.server = NewServer(logger.NewTestLogger(), Deps{
		Directory: dir,
		Schedule:  resolver,
		Metadata:  md,
		Playback:  f.playback,
		Bus:       bus,
		Metrics:   m,
		Clock:     clk,
	})
	t.Cleanup(func() {
		_ = f.server.Shutdown(context.Background())
		_ = bus.Close()
	})
	return f
}

func (f *serverFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_ListStations(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	var stations []struct {
		ID            string                `json:"id"`
		Medium        string                `json:"medium"`
		Default       bool                  `json:"default"`
		PlaylistLinks *domain.PlaylistLinks `json:"playlistLinks"`
	}
	decodeBody(t, rec, &stations)

	require.Len(t, stations, len(f.dir.Stations()))
	assert.Equal(t, directory.DefaultStationID, stations[0].ID)
	assert.True(t, stations[0].Default)
	assert.False(t, stations[1].Default)

	for _, st := range stations {
		if st.Medium == string(domain.MediumLiveVideo) {
			assert.Nil(t, st.PlaylistLinks, st.ID)
		}
	}
}

func TestServer_GetStation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/stations/"+directory.DefaultStationID)
	require.Equal(t, http.StatusOK, rec.Code)

	var st struct {
		ID            string                `json:"id"`
		PlaylistLinks *domain.PlaylistLinks `json:"playlistLinks"`
	}
	decodeBody(t, rec, &st)
	assert.Equal(t, directory.DefaultStationID, st.ID)

	want := f.dir.ExternalPlaylistLinksFor(f.dir.Default())
	assert.Equal(t, want, st.PlaylistLinks)
}

func TestServer_GetStationNotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/stations/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"station not found"}`, rec.Body.String())
}

func TestServer_NowPlaying(t *testing.T) {
	f := newServerFixture(t)
	f.metadata.SetCurrentStation(context.Background(), "primal-tv")

	rec := f.get(t, "/api/nowplaying")
	require.Equal(t, http.StatusOK, rec.Code)

	var body nowPlayingResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "fallback", body.Source)
	assert.Equal(t, string(domain.FallbackNoConfig), body.Reason)
	assert.Equal(t, "primal-tv", body.Metadata.StationID)
	assert.Equal(t, f.metadata.CurrentMetadata().Track.Title, body.Metadata.Track.Title)
}

func TestServer_Schedule(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/schedule")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Timezone string              `json:"timezone"`
		Entries  []scheduleEntryView `json:"entries"`
	}
	decodeBody(t, rec, &body)

	assert.Equal(t, f.schedule.Location().String(), body.Timezone)
	require.Len(t, body.Entries, len(f.schedule.Entries()))
	first := f.schedule.Entries()[0]
	assert.Equal(t, strings.ToLower(first.Day.String()), body.Entries[0].Day)
	assert.Equal(t, first.Show, body.Entries[0].Show)
}

func TestServer_CurrentShow(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/schedule/current")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Show string `json:"show"`
		Host string `json:"host"`
	}
	decodeBody(t, rec, &body)

	want := f.schedule.CurrentShow(f.clk.Now())
	assert.Equal(t, want.Name, body.Show)
	assert.Equal(t, want.Host, body.Host)
}

func TestServer_Playback(t *testing.T) {
	f := newServerFixture(t)
	st := f.dir.Default()
	retryAt := f.clk.Now().Add(2 * time.Second)
	f.playback.set(domain.PlaybackState{
		CurrentStation:   &st,
		Volume:           55,
		Phase:            domain.PhaseReconnecting,
		ReconnectAttempt: 2,
		NextRetryAt:      retryAt,
	})

	rec := f.get(t, "/api/playback")
	require.Equal(t, http.StatusOK, rec.Code)

	var body playbackView
	decodeBody(t, rec, &body)
	assert.Equal(t, st.ID, body.StationID)
	assert.Equal(t, "reconnecting", body.Phase)
	assert.Equal(t, 2, body.ReconnectAttempt)
	assert.Equal(t, 55, body.Volume)
	require.NotNil(t, body.NextRetryAt)
	assert.True(t, retryAt.Equal(*body.NextRetryAt))
}

func TestServer_PlaybackUnavailable(t *testing.T) {
	s := NewServer(logger.NewTestLogger(), Deps{
		Directory: directory.New(),
	})
	defer s.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/playback", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	f := newServerFixture(t)
	f.metadata.SetCurrentStation(context.Background(), "primal-tv")

	rec := f.get(t, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "primal_")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return conn
}

func TestServer_WebsocketPush(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	f := newServerFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	welcome := readMessage(t, conn)
	assert.Equal(t, MsgWelcome, welcome.Type)
	assert.NotEmpty(t, welcome.ClientID)

	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	f.metadata.SetCurrentStation(context.Background(), "primal-tv")
	msg := readMessage(t, conn)
	assert.Equal(t, MsgNowPlaying, msg.Type)
	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "fallback", payload["source"])

	f.bus.Publish(domain.NewVolumeChangedEvent(40))
	msg = readMessage(t, conn)
	assert.Equal(t, MsgPlayback, msg.Type)

	require.NoError(t, f.server.Shutdown(context.Background()))
	assert.Equal(t, 0, f.server.Hub().ClientCount())
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	hub := NewHub(logger.NewTestLogger(), nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	hub.Close()
	hub.Close()

	conn := dial(t, srv)
	defer conn.Close()

	// The welcome is dropped with the connection, the next read sees the close frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Equal(t, 0, hub.ClientCount())
}
