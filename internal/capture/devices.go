package capture

import (
	"github.com/gordonklaus/portaudio"
)

// Device describes an input device.
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// Devices lists the devices that can record. Index is the value to pass to
// NewRecorder.
func Devices() ([]Device, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = def.Name
	}

	return inputDevices(all, defaultName), nil
}

func inputDevices(all []*portaudio.DeviceInfo, defaultName string) []Device {
	var out []Device
	for i, d := range all {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.Name == defaultName,
		})
	}
	return out
}
