// Package dialog tracks per-user conversation state in process memory.
// States are created lazily, cleared when a flow finishes or fails, and
// intentionally lost on restart.
package dialog

import (
	"sync"

	"github.com/avoronin/sprintbot/internal/database"
)

// Step identifies where a user is in the task submission conversation.
type Step string

const (
	StepIdle        Step = "idle"
	StepQuestion1   Step = "question_1"
	StepQuestion2   Step = "question_2"
	StepQuestion3   Step = "question_3"
	StepGenerating  Step = "generating"
	StepAwaitingURL Step = "awaiting_link"
)

// QuestionNumber returns the 1-based question index for question steps, 0 otherwise.
func (s Step) QuestionNumber() int {
	switch s {
	case StepQuestion1:
		return 1
	case StepQuestion2:
		return 2
	case StepQuestion3:
		return 3
	}
	return 0
}

// NextQuestion returns the step after answering question n.
func NextQuestion(n int) Step {
	switch n {
	case 1:
		return StepQuestion2
	case 2:
		return StepQuestion3
	}
	return StepGenerating
}

// State is the dialog position of one user.
type State struct {
	Step    Step
	Day     int
	Task    *database.Task
	Answers [3]string
}

// Manager is a concurrency-safe table of per-user dialog states.
type Manager struct {
	mu     sync.Mutex
	states map[int64]*State
}

// NewManager creates an empty dialog state table.
func NewManager() *Manager {
	return &Manager{states: make(map[int64]*State)}
}

// Peek returns the user's state without creating one. Returns nil if absent.
func (m *Manager) Peek(telegramID int64) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[telegramID]
}

// Set replaces the user's state.
func (m *Manager) Set(telegramID int64, st *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[telegramID] = st
}

// SetStep updates only the step of the user's state.
func (m *Manager) SetStep(telegramID int64, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[telegramID]
	if !ok {
		st = &State{}
		m.states[telegramID] = st
	}
	st.Step = step
}

// SaveAnswer records the answer to question n (1-based).
func (m *Manager) SaveAnswer(telegramID int64, n int, answer string) {
	if n < 1 || n > 3 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[telegramID]
	if !ok {
		return
	}
	st.Answers[n-1] = answer
}

// Clear removes the user's state.
func (m *Manager) Clear(telegramID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, telegramID)
}
