package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the shared execution memory: an insertion-ordered map guarded
// for concurrent point writes. Later writes overwrite earlier ones; there is no
// multi-key atomicity.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]any),
	}
}

func (s *MemoryStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

// SetNested stores a value and recursively expands nested maps/arrays into
// dotted keys, so both step.result and step.result.field are addressable.
func (s *MemoryStore) SetNested(prefix string, value any) {
	s.Set(prefix, value)

	switch v := value.(type) {
	case map[string]any:
		for k, val := range v {
			s.SetNested(prefix+"."+k, val)
		}
	case []any:
		for i, val := range v {
			s.SetNested(fmt.Sprintf("%s.%d", prefix, i), val)
		}
	}
}

// All returns a point-in-time copy. Nested maps and slices are copied too, so
// evaluators can mutate the snapshot freely.
func (s *MemoryStore) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]any, len(s.values))
	for k, v := range s.values {
		snapshot[k] = copyValue(v)
	}
	return snapshot
}

// Keys returns keys in first-write order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Merge writes every entry of result key by key, in key order so repeated
// merges produce the same key order.
func Merge(store ValueStore, result map[string]any) {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		store.Set(k, result[k])
	}
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = copyValue(item)
		}
		return m
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = copyValue(item)
		}
		return items
	default:
		return v
	}
}

// Unflatten returns a copy of m in which dotted keys such as
// "properties.model" are also reachable as nested maps. Keys without dots
// keep their original values, and those always win over nested ones.
func Unflatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	var dotted []string
	for k, v := range m {
		if strings.Contains(k, ".") {
			dotted = append(dotted, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(dotted)

	for _, k := range dotted {
		parts := strings.Split(k, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := node[part].(map[string]any)
			if !ok {
				if _, taken := node[part]; taken {
					node = nil
					break
				}
				next = make(map[string]any)
				node[part] = next
			}
			node = next
		}
		if node == nil {
			continue
		}
		leaf := parts[len(parts)-1]
		if _, taken := node[leaf]; !taken {
			node[leaf] = m[k]
		}
	}
	return out
}
