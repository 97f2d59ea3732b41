package service

import (
	"sort"
	"sync"
)

// SubscriptionRegistry maps rooms to the symbols they follow. Rooms with no
// symbols are pruned.
type SubscriptionRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{rooms: make(map[string]map[string]struct{})}
}

// Subscribe adds symbol to room and reports whether it was newly added.
func (r *SubscriptionRegistry) Subscribe(room, symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[room] = set
	}
	if _, exists := set[symbol]; exists {
		return false
	}
	set[symbol] = struct{}{}
	return true
}

// Unsubscribe removes symbol from room and reports whether it was a member.
func (r *SubscriptionRegistry) Unsubscribe(room, symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := set[symbol]; !exists {
		return false
	}
	delete(set, symbol)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
	return true
}

func (r *SubscriptionRegistry) SymbolsForRoom(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms[room])
}

func (r *SubscriptionRegistry) RoomsForSymbol(symbol string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rooms []string
	for room, set := range r.rooms {
		if _, ok := set[symbol]; ok {
			rooms = append(rooms, room)
		}
	}
	sort.Strings(rooms)
	return rooms
}

// AllSymbols is the union of every room's symbols.
func (r *SubscriptionRegistry) AllSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	union := make(map[string]struct{})
	for _, set := range r.rooms {
		for sym := range set {
			union[sym] = struct{}{}
		}
	}
	return sortedKeys(union)
}

// Snapshot copies the registry as room -> sorted symbols.
func (r *SubscriptionRegistry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.rooms))
	for room, set := range r.rooms {
		out[room] = sortedKeys(set)
	}
	return out
}

// Total counts (room, symbol) pairs.
func (r *SubscriptionRegistry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.rooms {
		n += len(set)
	}
	return n
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
