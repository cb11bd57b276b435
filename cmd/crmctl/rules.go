package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"campaign-console/internal/segment"
)

// loadRules reads a YAML (or JSON) rules file and validates it the same way
// AI-parsed rules are validated.
func loadRules(path string) (segment.RuleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return segment.RuleSet{}, fmt.Errorf("read rules: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return segment.RuleSet{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return segment.RuleSet{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	rs, err := segment.Decode(js)
	if err != nil {
		return segment.RuleSet{}, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}

var setExpr = regexp.MustCompile(`^\s*([A-Za-z]+)\s*([<>=])\s*(.*?)\s*$`)

// parseSet reads a --set expression such as "spend>5000".
func parseSet(expr string) (segment.Field, segment.PredicateUpdate, error) {
	m := setExpr.FindStringSubmatch(expr)
	if m == nil {
		return "", segment.PredicateUpdate{}, fmt.Errorf("invalid --set %q, want e.g. spend>5000", expr)
	}
	f := segment.Field(m[1])
	if !f.Known() {
		names := make([]string, 0, len(segment.Fields()))
		for _, k := range segment.Fields() {
			names = append(names, string(k))
		}
		return "", segment.PredicateUpdate{}, fmt.Errorf("unknown field %q, want one of %s", m[1], strings.Join(names, ", "))
	}
	op := segment.Operator(m[2])
	v := segment.ParseValue(m[3])
	return f, segment.PredicateUpdate{Operator: &op, Value: &v}, nil
}

func renderRules(rs segment.RuleSet) (string, error) {
	b, err := yaml.Marshal(rs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
