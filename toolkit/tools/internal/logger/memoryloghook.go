// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package logger

// Stores log messages in memory so that tests can assert on what a pipeline stage reported.

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type MemoryLogHook struct {
	subHooksLock sync.Mutex
	subHooks     []*MemoryLogSubHook
}

type MemoryLogSubHook struct {
	parent       *MemoryLogHook
	messagesLock sync.Mutex
	messages     []MemoryLogMessage
}

type MemoryLogMessage struct {
	Message string
	Level   logrus.Level
}

func NewMemoryLogHook() *MemoryLogHook {
	return &MemoryLogHook{}
}

func (h *MemoryLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *MemoryLogHook) Fire(entry *logrus.Entry) error {
	message := MemoryLogMessage{
		Message: entry.Message,
		Level:   entry.Level,
	}

	for _, subHook := range h.getSubHooks() {
		subHook.add(message)
	}

	return nil
}

// AddSubHook starts a new capture. Each sub-hook only sees messages logged after it was added.
func (h *MemoryLogHook) AddSubHook() *MemoryLogSubHook {
	subHook := &MemoryLogSubHook{
		parent: h,
	}

	h.subHooksLock.Lock()
	defer h.subHooksLock.Unlock()

	h.subHooks = append(append([]*MemoryLogSubHook(nil), h.subHooks...), subHook)
	return subHook
}

func (h *MemoryLogHook) RemoveSubHook(subHook *MemoryLogSubHook) {
	h.subHooksLock.Lock()
	defer h.subHooksLock.Unlock()

	remaining := []*MemoryLogSubHook(nil)
	for _, entry := range h.subHooks {
		if entry != subHook {
			remaining = append(remaining, entry)
		}
	}

	h.subHooks = remaining
}

func (h *MemoryLogHook) getSubHooks() []*MemoryLogSubHook {
	h.subHooksLock.Lock()
	defer h.subHooksLock.Unlock()
	return h.subHooks
}

func (h *MemoryLogSubHook) add(message MemoryLogMessage) {
	h.messagesLock.Lock()
	defer h.messagesLock.Unlock()
	h.messages = append(h.messages, message)
}

func (h *MemoryLogSubHook) Close() {
	h.parent.RemoveSubHook(h)
}

// ConsumeMessages returns the captured messages and clears the capture.
func (h *MemoryLogSubHook) ConsumeMessages() []MemoryLogMessage {
	h.messagesLock.Lock()
	defer h.messagesLock.Unlock()

	messages := h.messages
	h.messages = nil
	return messages
}

// ConsumeMessagesContaining returns the captured messages at the given level that contain substr. The capture is
// cleared.
func (h *MemoryLogSubHook) ConsumeMessagesContaining(level logrus.Level, substr string) []string {
	matching := []string(nil)
	for _, message := range h.ConsumeMessages() {
		if message.Level == level && strings.Contains(message.Message, substr) {
			matching = append(matching, message.Message)
		}
	}
	return matching
}
