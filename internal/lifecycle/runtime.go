// Package lifecycle starts long-lived components in registration order and
// stops them in reverse.
package lifecycle

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type unit struct {
	name      string
	component Component
}

type Runtime struct {
	mu      sync.Mutex
	units   []unit
	running []unit
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

// Register adds a component under name. Nil components are ignored.
func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, unit{name: name, component: component})
}

// Start starts every registered component. When one fails, the ones already
// running are stopped and the failure is returned.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.running) > 0 {
		return nil
	}

	for _, u := range r.units {
		if err := u.component.Start(ctx); err != nil {
			_ = r.stopLocked(ctx)
			return pkgerrors.Wrapf(err, "start %s", u.name)
		}
		r.running = append(r.running, u)
		r.getLogEntry().WithField("component", u.name).Debug("started")
	}
	return nil
}

// Stop stops the running components in reverse order and joins their errors.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(ctx)
}

func (r *Runtime) stopLocked(ctx context.Context) error {
	var stopErr error
	for i := len(r.running) - 1; i >= 0; i-- {
		u := r.running[i]
		entry := r.getLogEntry().WithField("component", u.name)
		if err := u.component.Stop(ctx); err != nil {
			entry.WithField("error", err.Error()).Warn("stop failed")
			stopErr = errors.Join(stopErr, pkgerrors.Wrapf(err, "stop %s", u.name))
			continue
		}
		entry.Debug("stopped")
	}
	r.running = nil
	return stopErr
}

func (r *Runtime) getLogEntry() *log.Entry {
	return log.WithField("object", "Runtime")
}
