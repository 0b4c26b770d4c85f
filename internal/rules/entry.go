package rules

import "image"

// Entry is one community-maintained icon rule for an application package.
type Entry struct {
	AppName         string
	PackageName     string
	IsEnabled       bool
	IsEnabledAll    bool
	Icon            image.Image
	IconColor       Color
	HasIconColor    bool
	ContributorName string
}

// Color returns the rule color when one was declared.
func (e Entry) Color() (Color, bool) {
	return e.IconColor, e.HasIconColor
}

// RuleSet is an ordered, read-only list of entries. The zero value is an
// empty set. Order is significant: the first enabled entry for a package wins.
type RuleSet struct {
	entries []Entry
}

// NewRuleSet copies entries into a new set.
func NewRuleSet(entries []Entry) *RuleSet {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &RuleSet{entries: cp}
}

// Len returns the number of entries.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of the entries in order.
func (s *RuleSet) Entries() []Entry {
	if s == nil {
		return nil
	}
	cp := make([]Entry, len(s.entries))
	copy(cp, s.entries)
	return cp
}

// Find returns the first entry for pkg regardless of its flags.
func (s *RuleSet) Find(pkg string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, e := range s.entries {
		if e.PackageName == pkg {
			return e, true
		}
	}
	return Entry{}, false
}

// Match returns the first entry for pkg that is enabled. Later entries for
// the same package are never consulted once an enabled one is found.
func (s *RuleSet) Match(pkg string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, e := range s.entries {
		if e.PackageName == pkg && e.IsEnabled {
			return e, true
		}
	}
	return Entry{}, false
}

// Contains reports whether any entry names pkg.
func (s *RuleSet) Contains(pkg string) bool {
	_, ok := s.Find(pkg)
	return ok
}

// Packages lists the distinct package names in first-seen order.
func (s *RuleSet) Packages() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(s.entries))
	pkgs := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := seen[e.PackageName]; ok {
			continue
		}
		seen[e.PackageName] = struct{}{}
		pkgs = append(pkgs, e.PackageName)
	}
	return pkgs
}
