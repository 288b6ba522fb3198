// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"sort"
	"sync"
)

// ActionSet is an append-only set of action kinds. Reads may run
// concurrently with the single writer, Gate.ApproveAction.
type ActionSet struct {
	mu      sync.RWMutex
	actions map[string]struct{}
}

// NewActionSet returns a set holding actions.
func NewActionSet(actions ...string) *ActionSet {
	s := &ActionSet{actions: make(map[string]struct{}, len(actions))}
	for _, a := range actions {
		s.actions[a] = struct{}{}
	}
	return s
}

// Contains reports whether action is in the set.
func (s *ActionSet) Contains(action string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.actions[action]
	return ok
}

// List returns the members in sorted order.
func (s *ActionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.actions))
	for a := range s.actions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of members.
func (s *ActionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}

// add inserts action and reports whether it was new.
func (s *ActionSet) add(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[action]; ok {
		return false
	}
	s.actions[action] = struct{}{}
	return true
}
