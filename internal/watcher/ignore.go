package watcher

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreRule reports whether a change to rel should be dropped. rel is
// slash-separated and relative to the watch root.
type IgnoreRule func(rel string, isDir bool) bool

// DefaultIgnore drops generated output, hidden entries and editor
// scratch files.
func DefaultIgnore(rel string, _ bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	if strings.HasPrefix(rel, "_generated") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}

	base := pathBase(rel)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == "Thumbs.db":
		return true
	}
	return false
}

// GlobIgnore matches rel against gitignore-style patterns ("*.log",
// "dist/", "**/tmp").
func GlobIgnore(patterns []string) IgnoreRule {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	if len(ps) == 0 {
		return nil
	}
	return matcherRule(gitignore.NewMatcher(ps))
}

// GitIgnoreRule loads root/.gitignore. It returns nil, nil when the file
// does not exist.
func GitIgnoreRule(root string) (IgnoreRule, error) {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ps []gitignore.Pattern
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, nil))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, nil
	}
	return matcherRule(gitignore.NewMatcher(ps)), nil
}

// AnyIgnore combines rules; nil rules are skipped.
func AnyIgnore(rules ...IgnoreRule) IgnoreRule {
	var active []IgnoreRule
	for _, r := range rules {
		if r != nil {
			active = append(active, r)
		}
	}
	return func(rel string, isDir bool) bool {
		for _, r := range active {
			if r(rel, isDir) {
				return true
			}
		}
		return false
	}
}

// PathIgnore drops exactly the given relative paths.
func PathIgnore(paths ...string) IgnoreRule {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p != "" {
			set[filepath.ToSlash(filepath.Clean(p))] = struct{}{}
		}
	}
	return func(rel string, _ bool) bool {
		_, ok := set[filepath.ToSlash(rel)]
		return ok
	}
}

func matcherRule(m gitignore.Matcher) IgnoreRule {
	return func(rel string, isDir bool) bool {
		rel = filepath.ToSlash(rel)
		if rel == "" || rel == "." {
			return false
		}
		return m.Match(strings.Split(rel, "/"), isDir)
	}
}

func pathBase(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[i+1:]
	}
	return rel
}
