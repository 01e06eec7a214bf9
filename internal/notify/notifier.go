// Package notify tells interested parties that stored data changed.
package notify

import (
	"context"
	"errors"
)

// Entities reported in change notifications
const (
	EntityMenus   = "menus"
	EntityCards   = "cards"
	EntityAds     = "ads"
	EntityFriends = "friends"
	EntityConfigs = "configs"
	EntityUsers   = "users"
)

// Notifier is told about every successful write
type Notifier interface {
	// Changed reports that entity was written
	Changed(ctx context.Context, entity string) error

	// Type returns the notifier type (websocket, cache, ...)
	Type() string
}

// Manager fans a change out to every registered notifier
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager
func NewManager(notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// Register adds a notifier
func (m *Manager) Register(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Changed calls every notifier, even after one fails, and joins the errors
func (m *Manager) Changed(ctx context.Context, entity string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Changed(ctx, entity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Type returns the notifier type
func (m *Manager) Type() string {
	return "manager"
}
