package permission

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is a persisted allow-rule of the form ToolName(content).
type Rule struct {
	ToolName string
	Content  string
}

// String formats the rule in its persisted form.
func (r Rule) String() string {
	return fmt.Sprintf("%s(%s)", r.ToolName, r.Content)
}

// ParseRule parses a persisted rule string. A bare tool name (no
// parentheses) matches every invocation of that tool.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if s == "" {
			return Rule{}, fmt.Errorf("empty permission rule")
		}
		return Rule{ToolName: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return Rule{}, fmt.Errorf("malformed permission rule %q", s)
	}
	name := s[:open]
	if name == "" {
		return Rule{}, fmt.Errorf("malformed permission rule %q", s)
	}
	return Rule{ToolName: name, Content: s[open+1 : len(s)-1]}, nil
}

// ParseRules parses a list, skipping malformed entries.
func ParseRules(raw []string) []Rule {
	rules := make([]Rule, 0, len(raw))
	for _, s := range raw {
		r, err := ParseRule(s)
		if err != nil {
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

// matchContent checks a rule's content against a candidate value.
// Exact match first, then glob (doublestar) for patterned rules.
func matchContent(ruleContent, value string) bool {
	if ruleContent == "" || ruleContent == value {
		return true
	}
	if strings.ContainsAny(ruleContent, "*?[{") {
		ok, err := doublestar.Match(ruleContent, value)
		return err == nil && ok
	}
	return false
}

// ruleSet indexes rules by tool name for lookup.
type ruleSet struct {
	byTool map[string][]Rule
}

func newRuleSet(rules []Rule) *ruleSet {
	rs := &ruleSet{byTool: map[string][]Rule{}}
	for _, r := range rules {
		rs.byTool[r.ToolName] = append(rs.byTool[r.ToolName], r)
	}
	return rs
}

func (rs *ruleSet) add(r Rule) {
	rs.byTool[r.ToolName] = append(rs.byTool[r.ToolName], r)
}

// covers reports whether any rule for the tool matches the value.
func (rs *ruleSet) covers(toolName, value string) bool {
	for _, r := range rs.byTool[toolName] {
		if matchContent(r.Content, value) {
			return true
		}
	}
	return false
}
