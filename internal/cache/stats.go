package cache

import "time"

type NamespaceStats struct {
	TTL         time.Duration `json:"ttl"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Sets        int64         `json:"sets"`
	Entries     int           `json:"entries"`
	ApproxBytes int64         `json:"approxBytes"`
}

// Stats 缓存统计，仅用于观测
type Stats struct {
	Hits        int64                        `json:"hits"`
	Misses      int64                        `json:"misses"`
	HitRate     float64                      `json:"hitRate"`
	Entries     int                          `json:"entries"`
	ApproxBytes int64                        `json:"approxBytes"`
	Namespaces  map[Namespace]NamespaceStats `json:"namespaces"`
}

// Stats counts live entries only; expired ones awaiting a sweep are excluded.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Namespaces: make(map[Namespace]NamespaceStats, len(c.ttls))}
	for ns, cnt := range c.counters {
		s.Namespaces[ns] = NamespaceStats{
			TTL:    c.ttls[ns],
			Hits:   cnt.hits,
			Misses: cnt.misses,
			Sets:   cnt.sets,
		}
		s.Hits += cnt.hits
		s.Misses += cnt.misses
	}

	now := c.now()
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if !ok || now.After(e.expiresAt) {
			continue
		}
		ns := s.Namespaces[e.ns]
		ns.Entries++
		ns.ApproxBytes += int64(e.size)
		s.Namespaces[e.ns] = ns
		s.Entries++
		s.ApproxBytes += int64(e.size)
	}

	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
