package realtime

import (
	"context"

	"go.uber.org/zap"
)

// NoopHub accepts subscriptions but never pushes anything; callers refetch
// after their own mutations instead.
type NoopHub struct {
	reg *registry
}

func NewNoopHub(log *zap.Logger) *NoopHub {
	return &NoopHub{reg: newRegistry(log.Named("realtime"))}
}

func (h *NoopHub) Channel(name string) Channel {
	return h.reg.newChannel(name)
}

func (h *NoopHub) RemoveChannel(ch Channel) error {
	return h.reg.remove(ch)
}

func (h *NoopHub) Publish(context.Context, Change) error {
	return nil
}

func (h *NoopHub) Live() bool { return false }

func (h *NoopHub) Close() error {
	h.reg.closeAll()
	return nil
}
