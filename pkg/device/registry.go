// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package device

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Capacity is the fixed number of device slots.
const Capacity = 16

// maxStatusLen bounds the aggregate status report. Content past the
// bound is clipped, never overflowed.
const maxStatusLen = 256

type entry struct {
	dev     Device
	enabled bool
}

// InitError reports that a device was registered but failed to
// initialize. The device occupies its slot, disabled; callers that can
// run degraded should treat this as non-fatal, unlike capacity or
// duplicate errors.
type InitError struct {
	ID  string
	Err error
}

func (e *InitError) Error() string { return fmt.Sprintf("register %s: %v", e.ID, e.Err) }

func (e *InitError) Unwrap() error { return e.Err }

// Registry is the ordered collection of devices the dispatcher resolves
// against. It owns every device for the life of the process; insertion
// order is initialization order and identifiers are unique
// case-insensitively.
type Registry struct {
	entries []entry
	log     log.FieldLogger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger log.FieldLogger) *Registry {
	return &Registry{log: logger}
}

// Register appends the device and runs its initialization. The device
// becomes enabled only if initialization succeeds; a failed device
// still occupies its slot but stays out of the aggregate status, and
// the failure comes back as an InitError.
//
// Capacity exhaustion and duplicate identifiers fail without touching
// the existing entries.
func (r *Registry) Register(d Device) error {
	if len(r.entries) >= Capacity {
		return fmt.Errorf("registry full (%d devices)", Capacity)
	}
	if r.Find(d.ID()) != nil {
		return fmt.Errorf("duplicate device identifier: %s", d.ID())
	}

	ent := entry{dev: d}
	err := d.Init()
	if err == nil {
		ent.enabled = true
	}
	r.entries = append(r.entries, ent)

	logger := r.log.WithFields(log.Fields{"device": d.ID(), "kind": d.Kind().String()})
	if err != nil {
		logger.WithError(err).Warn("device registered but failed to initialize")
		return &InitError{ID: d.ID(), Err: err}
	}
	logger.Info("device registered")
	return nil
}

// Find resolves an identifier case-insensitively. A nil result is the
// normal "not found" outcome, not an error.
func (r *Registry) Find(id string) Device {
	for _, ent := range r.entries {
		if strings.EqualFold(ent.dev.ID(), id) {
			return ent.dev
		}
	}
	return nil
}

// Len returns the number of registered devices, enabled or not.
func (r *Registry) Len() int { return len(r.entries) }

// AggregateStatus reports every enabled device's status in registration
// order, comma-separated, clipped to the bounded report length.
func (r *Registry) AggregateStatus() string {
	buf := make([]byte, 0, maxStatusLen)
	for _, ent := range r.entries {
		if !ent.enabled {
			continue
		}
		part := ent.dev.Status()
		if len(buf) > 0 {
			part = "," + part
		}
		room := maxStatusLen - len(buf)
		if len(part) > room {
			buf = append(buf, part[:room]...)
			break
		}
		buf = append(buf, part...)
	}
	return string(buf)
}
