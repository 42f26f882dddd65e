package audio

import (
	"errors"
	"fmt"
	"strings"
)

// preference is one audio.input or audio.fallback term. An empty term or
// "default" refers to the server's default source.
type preference string

func newPreference(raw string) preference {
	return preference(strings.ToLower(strings.TrimSpace(raw)))
}

func (p preference) isDefault() bool {
	return p == "" || p == "default"
}

// find returns the first device matching p, or the default source.
func (p preference) find(devices []Device) (Device, bool) {
	for _, dev := range devices {
		if p.isDefault() && dev.Default {
			return dev, true
		}
		if !p.isDefault() && deviceMatches(dev, string(p)) {
			return dev, true
		}
	}
	return Device{}, false
}

// unusable names why a device cannot capture, or "" when it can.
func unusable(dev Device) string {
	switch {
	case !dev.Available:
		return "unavailable"
	case dev.Muted:
		return "muted"
	default:
		return ""
	}
}

// selectDeviceFromList applies the input/fallback policy to a device list.
// A muted or unavailable input is replaced by the fallback preference.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	want := newPreference(input)
	primary, ok := want.find(devices)
	if !ok {
		if want.isDefault() {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		return Selection{}, fmt.Errorf("audio.input %q did not match any device", string(want))
	}
	reason := unusable(primary)
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	backup := newPreference(fallback)
	alt, ok := backup.find(devices)
	if !ok {
		if backup.isDefault() {
			return Selection{}, fmt.Errorf("audio.input %q is %s and no default source exists", primary.ID, reason)
		}
		return Selection{}, fmt.Errorf("audio.input %q is %s and audio.fallback %q not found", primary.ID, reason, string(backup))
	}
	if why := unusable(alt); why != "" {
		return Selection{}, fmt.Errorf("audio.fallback device %q is %s", alt.ID, why)
	}

	return Selection{
		Device:   alt,
		Warning:  fmt.Sprintf("audio.input %q is %s; capturing from %q", primary.ID, reason, alt.ID),
		Fallback: alt.ID != primary.ID,
	}, nil
}

// deviceMatches reports whether term occurs in the device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}
