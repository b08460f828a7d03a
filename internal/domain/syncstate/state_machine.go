// Пакет syncstate — конечный автомат цикла синхронизации.
//
// Штатный путь: idle → authenticating → connecting → syncing → synced.
// failed достижим из authenticating, connecting и syncing.
// Из synced и failed начинается новый цикл (→ authenticating).
//
// Потокобезопасен через sync.RWMutex.
package syncstate

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние цикла синхронизации.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateConnecting     State = "connecting"
	StateSyncing        State = "syncing"
	StateSynced         State = "synced"
	StateFailed         State = "failed"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
}

// maxHistory — сколько последних переходов хранится в памяти.
const maxHistory = 64

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateIdle:           {StateAuthenticating: true},
	StateAuthenticating: {StateConnecting: true, StateFailed: true},
	StateConnecting:     {StateSyncing: true, StateFailed: true},
	StateSyncing:        {StateSynced: true, StateFailed: true},
	StateSynced:         {StateAuthenticating: true},
	StateFailed:         {StateAuthenticating: true},
}

// Machine — конечный автомат цикла синхронизации.
type Machine struct {
	mu      sync.RWMutex
	current State
	changed time.Time
	history []TransitionRecord
}

// NewMachine создаёт автомат в состоянии idle.
func NewMachine() *Machine {
	return &Machine{
		current: StateIdle,
		changed: time.Now().UTC(),
		history: make([]TransitionRecord, 0),
	}
}

// Current возвращает текущее состояние.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// ChangedAt возвращает время последнего перехода.
func (m *Machine) ChangedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (m *Machine) CanTransitionTo(target State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return validTransitions[m.current][target]
}

// InProgress возвращает true, если цикл ещё не завершён.
func (m *Machine) InProgress() bool {
	return IsActive(m.Current())
}

// TransitionTo выполняет переход. runID записывается в историю.
//
// Ошибки:
//   - INVALID_STATE — неизвестное целевое состояние
//   - INVALID_TRANSITION — переход недопустим
func (m *Machine) TransitionTo(target State, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(target, runID)
}

// Begin атомарно начинает новый цикл: переход в authenticating
// допустим только из idle, synced или failed.
func (m *Machine) Begin(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if IsActive(m.current) {
		return &TransitionError{
			Code:    "IN_PROGRESS",
			Message: fmt.Sprintf("цикл уже выполняется (состояние %s)", m.current),
		}
	}
	return m.transitionLocked(StateAuthenticating, runID)
}

func (m *Machine) transitionLocked(target State, runID string) error {
	if !isValidState(target) {
		return &TransitionError{
			Code:    "INVALID_STATE",
			Message: fmt.Sprintf("недопустимое состояние: %q", target),
		}
	}
	if !validTransitions[m.current][target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", m.current, target),
		}
	}

	now := time.Now().UTC()
	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		RunID:     runID,
		Timestamp: now,
	})
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.current = target
	m.changed = now
	return nil
}

// History возвращает историю переходов (копия).
func (m *Machine) History() []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]TransitionRecord, len(m.history))
	copy(result, m.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // INVALID_STATE, INVALID_TRANSITION, IN_PROGRESS
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsActive возвращает true для промежуточных состояний цикла.
func IsActive(s State) bool {
	switch s {
	case StateAuthenticating, StateConnecting, StateSyncing:
		return true
	default:
		return false
	}
}

func isValidState(s State) bool {
	_, ok := validTransitions[s]
	return ok
}

// ParseState преобразует строку в State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !isValidState(st) {
		return "", fmt.Errorf("недопустимое состояние: %q", s)
	}
	return st, nil
}
