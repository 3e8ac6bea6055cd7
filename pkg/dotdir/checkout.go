package dotdir

import (
	"errors"

	"github.com/papercomputeco/capsule/pkg/llm"
)

const (
	checkoutFile = "checkout.json"
)

// CheckoutState represents the persisted checkout state.
// It contains the hash of the checked-out node and the conversation turns
// leading up to (and including) that node.
type CheckoutState struct {
	// Hash is the hash of the checked-out node.
	Hash string `json:"hash"`

	// Turns is the conversation history in chronological order
	// (oldest first), up to and including the checked-out node.
	Turns []llm.Turn `json:"turns"`
}

// LoadCheckoutState loads the checkout state from a target .capsule/checkout.json.
// Returns nil, nil if no checkout state exists (empty/new conversation state).
// If overrideDir is non-empty, it is used instead of the default location.
func (m *Manager) LoadCheckoutState(overrideDir string) (*CheckoutState, error) {
	state := &CheckoutState{}
	ok, err := m.readJSON(overrideDir, checkoutFile, state)
	if err != nil || !ok {
		return nil, err
	}
	return state, nil
}

// SaveCheckout persists the checkout state to a target .capsule/checkout.json.
func (m *Manager) SaveCheckout(state *CheckoutState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil checkout state")
	}
	return m.writeJSON(overrideDir, checkoutFile, state)
}

// ClearCheckout removes the checkout state file.
// This resets the state so the next chat session starts a new root conversation.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearCheckout(overrideDir string) error {
	return m.remove(overrideDir, checkoutFile)
}
