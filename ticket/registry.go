package ticket

import "strings"

// FallbackCategory is what unknown or missing category keys degrade to.
const FallbackCategory = "unknown"

const fallbackEmoji = "🎫"

// Category is one entry of the closed, configured category set.
type Category struct {
	Key        string
	Name       string
	Emoji      string
	NotifyRole string
}

// Registry is the static category lookup shared by the panel, the
// ticket channel message and the log entries, so all three stay
// consistent.
type Registry struct {
	byKey map[string]Category
	order []string
}

func NewRegistry(categories []Category) *Registry {
	r := &Registry{byKey: make(map[string]Category, len(categories))}
	for _, c := range categories {
		if _, dup := r.byKey[c.Key]; dup {
			continue
		}
		r.byKey[c.Key] = c
		r.order = append(r.order, c.Key)
	}
	return r
}

func (r *Registry) Known(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

// DisplayName returns the configured name, or the key with its first
// letter capitalized when no entry exists.
func (r *Registry) DisplayName(key string) string {
	if c, ok := r.byKey[key]; ok && c.Name != "" {
		return c.Name
	}
	if key == "" {
		key = FallbackCategory
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func (r *Registry) Emoji(key string) string {
	if c, ok := r.byKey[key]; ok && c.Emoji != "" {
		return c.Emoji
	}
	return fallbackEmoji
}

func (r *Registry) NotifyRole(key string) string {
	return r.byKey[key].NotifyRole
}

// Categories returns the entries in configuration order.
func (r *Registry) Categories() []Category {
	out := make([]Category, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}
