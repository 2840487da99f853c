package mixer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

// Resolver is the slice of the instrument registry the dispatcher needs.
type Resolver interface {
	Resolve(raw string) (domain.Instrument, error)
	Names() []string
}

// Dispatcher validates mixer commands, resolves instrument names and drives
// the device. Failures come in three kinds: *domain.ValidationError for bad
// input, a not-found Outcome for unknown instruments, and
// *domain.DeviceRejectedError when a reachable device refuses the command.
// An unreachable device never shows up here: the bridge simulates success.
type Dispatcher struct {
	instruments Resolver
	device      domain.MixerDevice
}

func NewDispatcher(instruments Resolver, device domain.MixerDevice) *Dispatcher {
	return &Dispatcher{
		instruments: instruments,
		device:      device,
	}
}

func (d *Dispatcher) ListInstruments() []string {
	return d.instruments.Names()
}

func (d *Dispatcher) SetVolume(ctx context.Context, instrument string, value int) (domain.Outcome, error) {
	if err := requireName(instrument); err != nil {
		return domain.Outcome{}, err
	}
	if err := requireVolume(value); err != nil {
		return domain.Outcome{}, err
	}

	inst, missing := d.resolve(instrument)
	if missing != nil {
		return *missing, nil
	}

	observability.LoggerFromContext(ctx).Info("setting channel volume",
		"instrument", inst.Name,
		"channel", inst.Channel,
		"value", value,
	)

	resp, err := d.device.SetChannelVolume(ctx, inst.Channel, value)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("set volume of %s: %w", inst.Name, err)
	}
	return acknowledge(resp, fmt.Sprintf("Instrument '%s' volume set to %d", inst.Name, value))
}

func (d *Dispatcher) SetMute(ctx context.Context, instrument string, mute bool) (domain.Outcome, error) {
	if err := requireName(instrument); err != nil {
		return domain.Outcome{}, err
	}

	inst, missing := d.resolve(instrument)
	if missing != nil {
		return *missing, nil
	}

	observability.LoggerFromContext(ctx).Info("setting channel mute",
		"instrument", inst.Name,
		"channel", inst.Channel,
		"mute", mute,
	)

	resp, err := d.device.SetChannelMute(ctx, inst.Channel, mute)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("set mute of %s: %w", inst.Name, err)
	}
	return acknowledge(resp, fmt.Sprintf("Instrument '%s' %s", inst.Name, muteWord(mute)))
}

func (d *Dispatcher) SetWholeDeviceMute(ctx context.Context, mute bool) (domain.Outcome, error) {
	observability.LoggerFromContext(ctx).Info("setting speaker mute", "mute", mute)

	resp, err := d.device.SetSpeakerMute(ctx, mute)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("set speaker mute: %w", err)
	}
	return acknowledge(resp, fmt.Sprintf("All channels %s", muteWord(mute)))
}

func (d *Dispatcher) GetChannelStatus(ctx context.Context, instrument string) (domain.Outcome, error) {
	if err := requireName(instrument); err != nil {
		return domain.Outcome{}, err
	}

	inst, missing := d.resolve(instrument)
	if missing != nil {
		return *missing, nil
	}

	resp, err := d.device.ChannelStatus(ctx, inst.Channel)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("status of %s: %w", inst.Name, err)
	}
	return status(resp)
}

func (d *Dispatcher) GetDeviceStatus(ctx context.Context) (domain.Outcome, error) {
	resp, err := d.device.SpeakerStatus(ctx)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("speaker status: %w", err)
	}
	return status(resp)
}

func (d *Dispatcher) ChangeOverallVolume(ctx context.Context, value int) (domain.Outcome, error) {
	if err := requireVolume(value); err != nil {
		return domain.Outcome{}, err
	}

	observability.LoggerFromContext(ctx).Info("setting speaker volume", "value", value)

	resp, err := d.device.SetSpeakerVolume(ctx, value)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("set speaker volume: %w", err)
	}
	return acknowledge(resp, fmt.Sprintf("Overall volume set to %d", value))
}

// resolve returns either the instrument or a ready-made not-found outcome.
func (d *Dispatcher) resolve(name string) (domain.Instrument, *domain.Outcome) {
	inst, err := d.instruments.Resolve(name)
	if err == nil {
		return inst, nil
	}

	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		nf = &domain.NotFoundError{Name: name}
	}

	msg := fmt.Sprintf(
		"Instrument '%s' is not available. Available instruments: %s",
		strings.TrimSpace(nf.Name),
		strings.Join(d.instruments.Names(), ", "),
	)
	return domain.Instrument{}, &domain.Outcome{Status: domain.OutcomeNotFound, Message: msg}
}

func acknowledge(resp domain.DeviceResponse, message string) (domain.Outcome, error) {
	if !resp.Success {
		return domain.Outcome{}, &domain.DeviceRejectedError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}
	if resp.Simulated {
		message += " " + domain.SimulatedLabel
	}
	return domain.Outcome{
		Status:    domain.OutcomeApplied,
		Message:   message,
		Simulated: resp.Simulated,
	}, nil
}

func status(resp domain.DeviceResponse) (domain.Outcome, error) {
	if !resp.Success {
		return domain.Outcome{}, &domain.DeviceRejectedError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}
	return domain.Outcome{
		Status:    domain.OutcomeApplied,
		Message:   resp.Body,
		Simulated: resp.Simulated,
	}, nil
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &domain.ValidationError{Field: "instrument", Reason: "is required"}
	}
	return nil
}

func requireVolume(value int) error {
	if value < domain.MinVolume || value > domain.MaxVolume {
		return &domain.ValidationError{
			Field:  "value",
			Reason: fmt.Sprintf("%d is outside [%d, %d]", value, domain.MinVolume, domain.MaxVolume),
		}
	}
	return nil
}

func muteWord(mute bool) string {
	if mute {
		return "muted"
	}
	return "unmuted"
}
