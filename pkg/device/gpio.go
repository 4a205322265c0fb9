// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package device

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// relayLines maps a relay channel index (1..4) to its default output
// and indicator line names on the controller board.
var relayLines = [...]struct{ out, indicator string }{
	{"D0", "LED_D0"},
	{"D1", "LED_D1"},
	{"D2", "LED_D2"},
	{"D3", "LED_D3"},
}

// RelayLineNames returns the default line names for relay channel
// index (1..4).
func RelayLineNames(index int) (out, indicator string, err error) {
	if index < 1 || index > len(relayLines) {
		return "", "", fmt.Errorf("relay index %d out of range 1..%d", index, len(relayLines))
	}
	l := relayLines[index-1]
	return l.out, l.indicator, nil
}

// gpioPin adapts a periph.io line to the Pin contract.
type gpioPin struct {
	pin gpio.PinIO
}

func (p gpioPin) Out(high bool) error {
	return p.pin.Out(gpio.Level(high))
}

// OpenPin resolves a GPIO line by name through the periph registry.
// The host must have been initialized (periph.io/x/host/v3) first.
func OpenPin(name string) (Pin, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no GPIO line named %q", name)
	}
	return gpioPin{pin: pin}, nil
}
