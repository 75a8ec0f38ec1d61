// Package preview implements the cross-view notification channel that carries
// preview snippets from the generator view to renderer views.
package preview

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/boblangley/artifact-forge/internal/types"
)

// DefaultChannel is the channel name used when callers pass "".
const DefaultChannel = "ai-preview"

// Hub fans preview messages out to subscribers of named channels. Each
// subscriber holds at most one undelivered message; a newer publish replaces
// it. Publish never blocks.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*channel
	seq      uint64
	logger   *slog.Logger
}

type channel struct {
	latest *types.PreviewMessage
	subs   map[chan types.PreviewMessage]struct{}
}

// Config holds hub configuration.
type Config struct {
	Logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		channels: make(map[string]*channel),
		logger:   logger,
	}
}

func (h *Hub) channel(name string) *channel {
	if name == "" {
		name = DefaultChannel
	}
	c, ok := h.channels[name]
	if !ok {
		c = &channel{subs: make(map[chan types.PreviewMessage]struct{})}
		h.channels[name] = c
	}
	return c
}

// Publish stores msg as the channel's latest message and offers it to every
// subscriber. The assigned sequence number is returned in the message.
func (h *Hub) Publish(name string, msg types.PreviewMessage) types.PreviewMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	msg.Seq = h.seq

	c := h.channel(name)
	latest := msg
	c.latest = &latest

	for sub := range c.subs {
		offer(sub, msg)
	}

	h.logger.Debug("published preview", "channel", name, "seq", msg.Seq, "subscribers", len(c.subs))
	return msg
}

// offer replaces any pending message in sub with msg. Callers hold h.mu, so
// this is the only writer and the second send always has room.
func offer(sub chan types.PreviewMessage, msg types.PreviewMessage) {
	select {
	case sub <- msg:
		return
	default:
	}
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- msg:
	default:
	}
}

// Subscribe registers a listener on the named channel. The returned channel
// receives the latest message first, if any, and is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, name string) <-chan types.PreviewMessage {
	sub := make(chan types.PreviewMessage, 1)

	h.mu.Lock()
	c := h.channel(name)
	c.subs[sub] = struct{}{}
	if c.latest != nil {
		sub <- *c.latest
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(c.subs, sub)
		close(sub)
		h.mu.Unlock()
	}()

	return sub
}

// Latest returns the last message published on the named channel.
func (h *Hub) Latest(name string) (types.PreviewMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.channel(name)
	if c.latest == nil {
		return types.PreviewMessage{}, false
	}
	return *c.latest, true
}

// Subscribers returns the number of live subscribers on the named channel.
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channel(name).subs)
}

// Channels lists channel names in sorted order.
func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
