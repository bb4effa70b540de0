package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/logger"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Fetch(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{
		"nowplaying": "Nas - N.Y. State of Mind",
		"coverart": "https://covers.example/nas.jpg",
		"connections": "42",
		"bitrate": 192,
		"format": ["mp3", "aac"]
	}`)

	c := NewClient(logger.NewTestLogger())
	payload, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Nas - N.Y. State of Mind", payload.NowPlaying)
	assert.Equal(t, "https://covers.example/nas.jpg", payload.CoverArt)
	require.NotNil(t, payload.Connections)
	assert.Equal(t, 42, *payload.Connections)
	require.NotNil(t, payload.Bitrate)
	assert.Equal(t, 192, *payload.Bitrate)
	assert.Equal(t, []string{"mp3", "aac"}, payload.Formats)
}

func TestClient_FetchSendsHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"nowplaying":"x"}`))
	}))
	defer srv.Close()

	c := NewClient(nil, WithUserAgent("test-agent"))
	_, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "application/json", gotAccept)
}

func TestClient_FetchNonOK(t *testing.T) {
	srv := newServer(t, http.StatusServiceUnavailable, `{"nowplaying":"ignored"}`)

	_, err := NewClient(nil).Fetch(context.Background(), srv.URL)

	var statusErr *domain.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, srv.URL, statusErr.URL)
}

func TestClient_FetchBadJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated", `{"nowplaying": "x"`},
		{"html", `<html>oops</html>`},
		{"missing nowplaying", `{"coverart": "x"}`},
		{"nowplaying not a string", `{"nowplaying": 12}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, http.StatusOK, tt.body)

			_, err := NewClient(nil).Fetch(context.Background(), srv.URL)

			var decodeErr *domain.DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestClient_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(nil, WithTimeout(20*time.Millisecond))
	_, err := c.Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_FetchUnreachable(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	_, err := NewClient(nil).Fetch(context.Background(), url)
	require.Error(t, err)

	var statusErr *domain.StatusError
	var decodeErr *domain.DecodeError
	assert.False(t, errors.As(err, &statusErr))
	assert.False(t, errors.As(err, &decodeErr))
}

func TestDecode_FlexibleFields(t *testing.T) {
	intp := func(v int) *int { return &v }

	tests := []struct {
		name        string
		body        string
		connections *int
		bitrate     *int
		formats     []string
	}{
		{"all absent", `{"nowplaying":""}`, nil, nil, nil},
		{"numeric strings", `{"nowplaying":"","connections":" 7 ","bitrate":"128"}`, intp(7), intp(128), nil},
		{"numbers", `{"nowplaying":"","connections":7,"bitrate":320.0}`, intp(7), intp(320), nil},
		{"nulls", `{"nowplaying":"","connections":null,"bitrate":null,"format":null}`, nil, nil, nil},
		{"garbage numbers", `{"nowplaying":"","connections":"many","bitrate":true}`, nil, nil, nil},
		{"single format", `{"nowplaying":"","format":"ogg"}`, nil, nil, []string{"ogg"}},
		{"format array", `{"nowplaying":"","format":["mp3"]}`, nil, nil, []string{"mp3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.connections, payload.Connections)
			assert.Equal(t, tt.bitrate, payload.Bitrate)
			assert.Equal(t, tt.formats, payload.Formats)
		})
	}
}
