package artifact

// Ref is an artifact reference as reported by a compute unit: a type tag
// plus an opaque payload locator. Units never ship raw bytes through the
// orchestrator.
type Ref struct {
	Type    string `json:"type"`
	Locator string `json:"locator"`
}

// Key is the identity used for de-duplication.
func (r Ref) Key() string {
	return r.Type + "|" + r.Locator
}

// Artifact is a collected reference annotated with its originating stage.
type Artifact struct {
	Type    string `json:"type"`
	Locator string `json:"locator"`
	Stage   string `json:"stage"`
}

// Collector accumulates artifact references across stages, dropping
// duplicates by type+locator and preserving first-seen order. A
// collector belongs to a single request and is not safe for concurrent
// use.
type Collector struct {
	seen  map[string]bool
	items []Artifact
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]bool)}
}

// Add records the refs produced by a stage. A stage producing zero refs
// is fine; a ref already collected (even from a different stage) is
// dropped.
func (c *Collector) Add(stage string, refs []Ref) {
	for _, r := range refs {
		if r.Type == "" && r.Locator == "" {
			continue
		}
		key := r.Key()
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		c.items = append(c.items, Artifact{Type: r.Type, Locator: r.Locator, Stage: stage})
	}
}

// Len reports how many distinct artifacts have been collected.
func (c *Collector) Len() int {
	return len(c.items)
}

// Drain returns the collected artifacts in first-seen order and resets
// the collector. Never returns nil.
func (c *Collector) Drain() []Artifact {
	out := c.items
	if out == nil {
		out = []Artifact{}
	}
	c.items = nil
	c.seen = make(map[string]bool)
	return out
}
