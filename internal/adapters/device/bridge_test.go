package device_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/mixer-agent/internal/adapters/device"
	"github.com/PabloGalante/mixer-agent/internal/domain"
)

type recordedRequest struct {
	method string
	path   string
	form   url.Values
}

type recorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.reqs...)
}

func newFirmware(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, recordedRequest{method: r.Method, path: r.URL.Path, form: form})
		rec.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, rec
}

func newBridge(t *testing.T, baseURL string) *device.Bridge {
	t.Helper()

	b, err := device.NewBridge(device.Config{
		BaseURL:        baseURL,
		ConnectTimeout: 200 * time.Millisecond,
		ReadTimeout:    300 * time.Millisecond,
	})
	require.NoError(t, err)
	return b
}

func TestSetChannelVolumeSendsFormAndReturnsBodyVerbatim(t *testing.T) {
	srv, seen := newFirmware(t, http.StatusOK, `{"status":"volume set"}`)
	b := newBridge(t, srv.URL)

	resp, err := b.SetChannelVolume(context.Background(), 3, 4)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.False(t, resp.Simulated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"status":"volume set"}`, resp.Body)

	reqs := seen.all()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/volume", got.path)
	assert.Equal(t, "4", got.form.Get("value"))
	assert.Equal(t, "3", got.form.Get("channel"))
}

func TestOperationsHitFirmwareRoutes(t *testing.T) {
	srv, seen := newFirmware(t, http.StatusOK, "ok")
	b := newBridge(t, srv.URL+"/")
	ctx := context.Background()

	_, err := b.SetChannelMute(ctx, 1, true)
	require.NoError(t, err)
	_, err = b.SetSpeakerMute(ctx, false)
	require.NoError(t, err)
	_, err = b.ChannelStatus(ctx, 2)
	require.NoError(t, err)
	_, err = b.SpeakerStatus(ctx)
	require.NoError(t, err)
	_, err = b.SetSpeakerVolume(ctx, 7)
	require.NoError(t, err)

	reqs := seen.all()
	require.Len(t, reqs, 5)
	assert.Equal(t, "/muteChannel", reqs[0].path)
	assert.Equal(t, "true", reqs[0].form.Get("mute"))
	assert.Equal(t, "1", reqs[0].form.Get("channel"))

	assert.Equal(t, "/muteSpeaker", reqs[1].path)
	assert.Equal(t, "false", reqs[1].form.Get("mute"))

	assert.Equal(t, http.MethodGet, reqs[2].method)
	assert.Equal(t, "/channelStatus/2", reqs[2].path)

	assert.Equal(t, "/speakerStatus", reqs[3].path)

	assert.Equal(t, "/changeVolumeSpeaker", reqs[4].path)
	assert.Equal(t, "7", reqs[4].form.Get("value"))
}

func TestRejectionIsPropagated(t *testing.T) {
	srv, _ := newFirmware(t, http.StatusBadRequest, `{"error":"Invalid channel"}`)
	b := newBridge(t, srv.URL)

	resp, err := b.SetChannelMute(context.Background(), 9, true)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.False(t, resp.Simulated)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, `{"error":"Invalid channel"}`, resp.Body)
}

func TestUnreachableDeviceIsSimulated(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	b := newBridge(t, addr)

	resp, err := b.SetChannelVolume(context.Background(), 3, 4)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.Simulated)
	assert.Contains(t, resp.Body, "set to 4")
	assert.Contains(t, resp.Body, domain.SimulatedLabel)
}

func TestSlowDeviceFallsBackWithinBudget(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	b := newBridge(t, srv.URL)

	start := time.Now()
	resp, err := b.SpeakerStatus(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, resp.Simulated)
	assert.Contains(t, resp.Body, domain.SimulatedLabel)
}

func TestCallerCancellationDoesNotAbortExchange(t *testing.T) {
	srv, seen := newFirmware(t, http.StatusOK, "ok")
	b := newBridge(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := b.SetSpeakerVolume(ctx, 5)
	require.NoError(t, err)
	assert.False(t, resp.Simulated)
	assert.Len(t, seen.all(), 1)
}

func TestNewBridgeRejectsBadURL(t *testing.T) {
	_, err := device.NewBridge(device.Config{BaseURL: "192.168.0.4"})
	assert.Error(t, err)
}
