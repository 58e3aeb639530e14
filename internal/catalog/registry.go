package catalog

import (
	"strings"

	"modelgate/internal/model"
)

// Registry 模型注册表，保持配置中的优先级顺序
type Registry struct {
	models []model.ModelDescriptor
	byName map[string]int
}

func NewRegistry(models []model.ModelDescriptor) *Registry {
	r := &Registry{
		models: make([]model.ModelDescriptor, len(models)),
		byName: make(map[string]int, len(models)),
	}
	copy(r.models, models)
	for i, m := range r.models {
		r.byName[strings.ToLower(m.Name)] = i
	}
	return r
}

// Get looks a model up by name, case-insensitively.
func (r *Registry) Get(name string) (model.ModelDescriptor, bool) {
	idx, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return model.ModelDescriptor{}, false
	}
	return r.models[idx], true
}

// List returns all descriptors in priority order.
func (r *Registry) List() []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Available returns descriptors flagged available, in priority order.
func (r *Registry) Available() []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, 0, len(r.models))
	for _, m := range r.models {
		if m.Available {
			out = append(out, m)
		}
	}
	return out
}

// MatchAny reports whether name matches any of the wildcard patterns.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchPattern(p, name) {
			return true
		}
	}
	return false
}

// MatchPattern 通配符匹配（不区分大小写），支持前缀/后缀/包含三种形式
func MatchPattern(pattern, name string) bool {
	pattern = strings.ToLower(pattern)
	text := strings.ToLower(name)

	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == text
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		return strings.Contains(text, strings.Trim(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(text, strings.TrimPrefix(pattern, "*"))
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(text, strings.TrimSuffix(pattern, "*"))
	}
	// inner wildcard: prefix*suffix
	idx := strings.Index(pattern, "*")
	prefix, suffix := pattern[:idx], pattern[idx+1:]
	return len(text) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(text, prefix) &&
		MatchPattern("*"+suffix, text[len(prefix):])
}
