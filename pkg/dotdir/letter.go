package dotdir

import (
	"errors"

	"github.com/papercomputeco/capsule/pkg/llm"
)

const (
	letterFile = "letter.json"
)

// LoadLetter loads the letter from a target .capsule/letter.json.
// Returns nil, nil if no letter has been written.
func (m *Manager) LoadLetter(overrideDir string) (*llm.LetterContext, error) {
	letter := &llm.LetterContext{}
	ok, err := m.readJSON(overrideDir, letterFile, letter)
	if err != nil || !ok {
		return nil, err
	}
	return letter, nil
}

// SaveLetter persists the letter to a target .capsule/letter.json.
func (m *Manager) SaveLetter(letter *llm.LetterContext, overrideDir string) error {
	if letter.IsEmpty() {
		return errors.New("cannot save an empty letter")
	}
	return m.writeJSON(overrideDir, letterFile, letter)
}

// ClearLetter removes the letter file. Returns nil if it doesn't exist.
func (m *Manager) ClearLetter(overrideDir string) error {
	return m.remove(overrideDir, letterFile)
}
