package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is a compiled module rule.
type Rule struct {
	test    *regexp.Regexp
	query   *regexp.Regexp
	include []string
	exclude []string
	Use     []UseConfig
}

// CompileRules validates patterns and compiles the configured rules.
func (c *Config) CompileRules() ([]*Rule, error) {
	rules := make([]*Rule, 0, len(c.Module.Rules))
	for i, rc := range c.Module.Rules {
		r := &Rule{Use: rc.Use}
		var err error
		if rc.Test != "" {
			if r.test, err = regexp.Compile(rc.Test); err != nil {
				return nil, fmt.Errorf("module.rules[%d].test: %w", i, err)
			}
		}
		if rc.ResourceQuery != "" {
			if r.query, err = regexp.Compile(rc.ResourceQuery); err != nil {
				return nil, fmt.Errorf("module.rules[%d].resource_query: %w", i, err)
			}
		}
		for _, p := range append(append([]string(nil), rc.Include...), rc.Exclude...) {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("module.rules[%d]: invalid glob %q", i, p)
			}
		}
		r.include = rc.Include
		r.exclude = rc.Exclude
		for j, u := range rc.Use {
			if u.Loader == "" {
				return nil, fmt.Errorf("module.rules[%d].use[%d]: loader is required", i, j)
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Match reports whether the rule applies to a resource path and query.
// Globs are matched against the path relative to context.
func (r *Rule) Match(context, path, query string) bool {
	if r.test != nil && !r.test.MatchString(path) {
		return false
	}
	if r.query != nil && !r.query.MatchString(query) {
		return false
	}
	if len(r.include) == 0 && len(r.exclude) == 0 {
		return true
	}
	rel := path
	if context != "" {
		if p, err := filepath.Rel(context, path); err == nil && !escapes(p) {
			rel = p
		}
	}
	rel = filepath.ToSlash(rel)
	for _, p := range r.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(r.include) == 0 {
		return true
	}
	for _, p := range r.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// LoadersFor returns the loaders of every matching rule, in rule order.
func LoadersFor(rules []*Rule, context, path, query string) []UseConfig {
	var use []UseConfig
	for _, r := range rules {
		if r.Match(context, path, query) {
			use = append(use, r.Use...)
		}
	}
	return use
}

// escapes reports whether a filepath.Rel result leaves its base directory.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
