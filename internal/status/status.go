// Package status defines the sink through which connectors and the account
// manager publish state changes. The daemon renders it to the log; an
// embedding UI would render sidebar entries and a badge instead.
package status

import (
	"log"
	"sync"
)

// Sink receives display updates. SetStatus writes are last-write-wins per
// (account, channel) pair; channel "" is the account's primary balance line
// and text "" clears the entry.
type Sink interface {
	SetStatus(account, channel, text string)
	SetAggregate(text string)
	RefreshSidebar()
}

// LogSink renders status updates to the standard logger.
type LogSink struct{}

func (LogSink) SetStatus(account, channel, text string) {
	if channel == "" {
		channel = "balance"
	}
	if text == "" {
		log.Printf("status: %s [%s] cleared", account, channel)
		return
	}
	log.Printf("status: %s [%s] %s", account, channel, text)
}

func (LogSink) SetAggregate(text string) {
	log.Printf("status: total balance %s", text)
}

func (LogSink) RefreshSidebar() {}

// Memory records every update for inspection.
type Memory struct {
	mu        sync.Mutex
	statuses  map[string]string
	aggregate string
	sidebar   int
}

func NewMemory() *Memory {
	return &Memory{statuses: make(map[string]string)}
}

func (m *Memory) SetStatus(account, channel, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := account + "\x00" + channel
	if text == "" {
		delete(m.statuses, key)
		return
	}
	m.statuses[key] = text
}

func (m *Memory) SetAggregate(text string) {
	m.mu.Lock()
	m.aggregate = text
	m.mu.Unlock()
}

func (m *Memory) RefreshSidebar() {
	m.mu.Lock()
	m.sidebar++
	m.mu.Unlock()
}

// Status returns the last text set for (account, channel), or "" if unset
// or cleared.
func (m *Memory) Status(account, channel string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[account+"\x00"+channel]
}

func (m *Memory) Aggregate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregate
}

// SidebarRefreshes reports how many times RefreshSidebar was called.
func (m *Memory) SidebarRefreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sidebar
}

var (
	_ Sink = LogSink{}
	_ Sink = (*Memory)(nil)
)
