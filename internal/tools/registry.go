package tools

import "sort"

var registry = make(map[string]Tool)

// Register adds a tool to the global registry.
// Tools call this in their init() function.
func Register(t Tool) {
	registry[t.Name()] = t
}

// All returns all registered tools, sorted by name for deterministic ordering.
func All() []Tool {
	out := make([]Tool, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Get returns a tool by name, or nil if not found.
func Get(name string) Tool {
	return registry[name]
}
