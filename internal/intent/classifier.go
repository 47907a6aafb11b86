package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// DirectiveAuto is the sentinel directive meaning "let the classifier
// decide". Any other non-empty directive wins outright.
const DirectiveAuto = "auto"

// Decision is the routing outcome for one request. Created once per
// request and never mutated afterwards.
type Decision struct {
	Capability   string         `json:"capability"`
	Confidence   int            `json:"confidence"`
	Params       map[string]any `json:"params"`
	MatchedRules []string       `json:"matched_rules,omitempty"`
	Group        string         `json:"group,omitempty"`
	Explicit     bool           `json:"explicit,omitempty"`
	Fallback     bool           `json:"fallback,omitempty"`
}

// Extractor pulls structured parameters out of request text. Extractors
// run only for the winning rule and must tolerate text that matched the
// pattern but yields nothing.
type Extractor func(text string) map[string]any

// Rule is one case-insensitive pattern within a priority group. A rule
// matches only if its pattern matches AND every companion token is
// present, which keeps a generic pattern from swallowing a more
// specific query.
type Rule struct {
	ID         string
	Capability string
	Pattern    string
	Companions []string
	Confidence int
	Extract    Extractor

	re         *regexp.Regexp
	companions []*regexp.Regexp
	literals   int
}

// Group is a named set of rules sharing one priority slot. Groups are
// evaluated in declaration order; the first group containing any
// matching rule decides the capability and later groups are never
// consulted.
type Group struct {
	Name  string
	Rules []Rule
}

// Classifier evaluates the rule table. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	groups   []Group
	fallback string
}

// NewClassifier compiles the rule table. The fallback capability is used
// when no rule in any group matches.
func NewClassifier(groups []Group, fallback string) (*Classifier, error) {
	if fallback == "" {
		return nil, fmt.Errorf("intent: fallback capability is required")
	}
	compiled := make([]Group, len(groups))
	for gi, g := range groups {
		cg := Group{Name: g.Name, Rules: make([]Rule, len(g.Rules))}
		for ri, r := range g.Rules {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("intent: rule %q: %w", r.ID, err)
			}
			r.re = re
			r.literals = countLiteralTokens(r.Pattern)
			r.companions = r.companions[:0]
			for _, tok := range r.Companions {
				cre, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(tok) + `\b`)
				if err != nil {
					return nil, fmt.Errorf("intent: rule %q companion %q: %w", r.ID, tok, err)
				}
				r.companions = append(r.companions, cre)
			}
			cg.Rules[ri] = r
		}
		compiled[gi] = cg
	}
	return &Classifier{groups: compiled, fallback: fallback}, nil
}

// Classify maps request text plus an optional explicit directive to a
// Decision. It never fails: no match is a valid terminal state and
// produces the fallback capability with confidence 0.
func (c *Classifier) Classify(text, directive string) Decision {
	if d := strings.TrimSpace(directive); d != "" && !strings.EqualFold(d, DirectiveAuto) {
		// Explicit user selection is never overridden by pattern
		// matching.
		return Decision{
			Capability: strings.ToLower(d),
			Confidence: 100,
			Params:     map[string]any{},
			Explicit:   true,
		}
	}

	for _, g := range c.groups {
		var best *Rule
		var matched []string
		for i := range g.Rules {
			r := &g.Rules[i]
			if !r.matches(text) {
				continue
			}
			matched = append(matched, r.ID)
			if best == nil || r.literals > best.literals {
				best = r
			}
		}
		if best == nil {
			continue
		}
		params := map[string]any{}
		if best.Extract != nil {
			if p := best.Extract(text); p != nil {
				params = p
			}
		}
		return Decision{
			Capability:   best.Capability,
			Confidence:   best.Confidence,
			Params:       params,
			MatchedRules: matched,
			Group:        g.Name,
		}
	}

	return Decision{
		Capability: c.fallback,
		Confidence: 0,
		Params:     map[string]any{},
		Fallback:   true,
	}
}

// FallbackCapability returns the capability used when nothing matches.
func (c *Classifier) FallbackCapability() string {
	return c.fallback
}

func (r *Rule) matches(text string) bool {
	if !r.re.MatchString(text) {
		return false
	}
	for _, cre := range r.companions {
		if !cre.MatchString(text) {
			return false
		}
	}
	return true
}

// countLiteralTokens counts the plain word tokens in a pattern source,
// ignoring regex syntax. Used for specificity tie-breaks within a group.
func countLiteralTokens(pattern string) int {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch == '\\' {
			// Skip escape sequences: \b, \s, \d and friends are
			// syntax, not literals.
			i++
			b.WriteByte(' ')
			continue
		}
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteByte(ch)
		} else {
			b.WriteByte(' ')
		}
	}
	count := 0
	for _, tok := range strings.Fields(b.String()) {
		// Single letters are almost always regex flags or class
		// leftovers, not meaningful literals.
		if len(tok) > 1 {
			count++
		}
	}
	return count
}
