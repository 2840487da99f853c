package device

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

const (
	DefaultConnectTimeout = 2 * time.Second
	DefaultReadTimeout    = 5 * time.Second

	maxBodyBytes = 64 << 10
)

// Config holds the device address and the exchange budgets.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Bridge talks to the mixer firmware over HTTP. Every operation is a single
// exchange bounded by the connect and read budgets; there are no retries.
type Bridge struct {
	baseURL string
	client  *http.Client
}

var _ domain.MixerDevice = (*Bridge)(nil)

// NewBridge validates the base address and prepares an HTTP client with hard
// connect and read budgets.
func NewBridge(cfg Config) (*Bridge, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("device: invalid base url %q", cfg.BaseURL)
	}

	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	read := cfg.ReadTimeout
	if read <= 0 {
		read = DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
		ResponseHeaderTimeout: read,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
	}

	return &Bridge{
		baseURL: u.String(),
		client: &http.Client{
			Transport: transport,
			Timeout:   connect + read,
		},
	}, nil
}

func (b *Bridge) SetChannelVolume(ctx context.Context, channel, value int) (domain.DeviceResponse, error) {
	form := url.Values{}
	form.Set("value", strconv.Itoa(value))
	form.Set("channel", strconv.Itoa(channel))

	action := fmt.Sprintf("channel %d volume set to %d", channel, value)
	return b.exchange(ctx, action, http.MethodPost, form, "volume")
}

func (b *Bridge) SetChannelMute(ctx context.Context, channel int, mute bool) (domain.DeviceResponse, error) {
	form := url.Values{}
	form.Set("channel", strconv.Itoa(channel))
	form.Set("mute", strconv.FormatBool(mute))

	action := fmt.Sprintf("channel %d mute set to %t", channel, mute)
	return b.exchange(ctx, action, http.MethodPost, form, "muteChannel")
}

func (b *Bridge) SetSpeakerMute(ctx context.Context, mute bool) (domain.DeviceResponse, error) {
	form := url.Values{}
	form.Set("mute", strconv.FormatBool(mute))

	action := fmt.Sprintf("speaker mute set to %t", mute)
	return b.exchange(ctx, action, http.MethodPost, form, "muteSpeaker")
}

func (b *Bridge) ChannelStatus(ctx context.Context, channel int) (domain.DeviceResponse, error) {
	action := fmt.Sprintf("status of channel %d unknown", channel)
	return b.exchange(ctx, action, http.MethodGet, nil, "channelStatus", strconv.Itoa(channel))
}

func (b *Bridge) SpeakerStatus(ctx context.Context) (domain.DeviceResponse, error) {
	return b.exchange(ctx, "speaker status unknown", http.MethodGet, nil, "speakerStatus")
}

func (b *Bridge) SetSpeakerVolume(ctx context.Context, value int) (domain.DeviceResponse, error) {
	form := url.Values{}
	form.Set("value", strconv.Itoa(value))

	action := fmt.Sprintf("speaker volume set to %d", value)
	return b.exchange(ctx, action, http.MethodPost, form, "changeVolumeSpeaker")
}

// exchange performs one request. Transport failures are absorbed into a
// simulated acknowledgement; non-2xx answers are returned as they came.
func (b *Bridge) exchange(
	ctx context.Context,
	action string,
	method string,
	form url.Values,
	path ...string,
) (domain.DeviceResponse, error) {
	// Caller cancellation must not cut the exchange short: only the budgets apply.
	ctx = context.WithoutCancel(ctx)

	log := observability.LoggerFromContext(ctx).With(
		"method", method,
		"path", strings.Join(path, "/"),
	)

	endpoint, err := url.JoinPath(b.baseURL, path...)
	if err != nil {
		return domain.DeviceResponse{}, fmt.Errorf("device: build url: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return domain.DeviceResponse{}, fmt.Errorf("device: build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		log.Warn("device unreachable, simulating response", "error", err)
		return simulated(action), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn("device response interrupted, simulating response", "error", err)
		return simulated(action), nil
	}

	out := domain.DeviceResponse{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(data),
	}

	log.Info("device exchange",
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func simulated(action string) domain.DeviceResponse {
	return domain.DeviceResponse{
		Success:    true,
		StatusCode: http.StatusOK,
		Body:       action + " " + domain.SimulatedLabel,
		Simulated:  true,
	}
}
