package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonwraymond/fetchops/request"
)

// Action is a named side effect attached to descriptors with AddAction.
// Hooks run on the entry's goroutine; OnFinish runs for every outcome,
// including entries dropped before they started.
type Action struct {
	Name     string
	OnStart  func(ctx context.Context, req request.Request)
	OnFinish func(ctx context.Context, req request.Request, res Result)
}

// Actions is a registry of actions by name.
type Actions struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func newActions() *Actions {
	return &Actions{actions: make(map[string]Action)}
}

// Register adds an action.
func (a *Actions) Register(action Action) error {
	if action.Name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownAction)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.actions[action.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAction, action.Name)
	}
	a.actions[action.Name] = action
	return nil
}

// Unregister removes an action.
func (a *Actions) Unregister(name string) {
	a.mu.Lock()
	delete(a.actions, name)
	a.mu.Unlock()
}

// Names returns the registered names, sorted.
func (a *Actions) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.actions))
	for n := range a.actions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// resolve maps names to actions in order, failing on the first unknown one.
func (a *Actions) resolve(names []string) ([]Action, error) {
	if len(names) == 0 {
		return nil, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Action, 0, len(names))
	for _, n := range names {
		act, ok := a.actions[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAction, n)
		}
		out = append(out, act)
	}
	return out, nil
}
