package index

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ignorePattern is a single parsed .minigitignore pattern.
type ignorePattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool
}

// ignoreRule pairs a pattern with the directory (relative to the
// repository root) it was loaded from, so anchored patterns are matched
// relative to their own file rather than the repository root.
type ignoreRule struct {
	baseDir string
	pat     ignorePattern
}

// ignoreMatcher aggregates ignore rules loaded from one or more
// .minigitignore files.
type ignoreMatcher struct {
	rules []ignoreRule
}

// Matcher is the exported handle WorkdirAnalyzer (package workdir) uses
// to honor ignore rules when classifying untracked files.
type Matcher struct {
	m *ignoreMatcher
}

// LoadMatcher loads the ignore rules rooted at workDir.
func LoadMatcher(workDir string) *Matcher {
	return &Matcher{m: loadIgnoreMatcher(workDir)}
}

// IsIgnored reports whether relPath (forward-slash separated, relative to
// the repository root) matches an ignore rule.
func (mm *Matcher) IsIgnored(relPath string, isDir bool) bool {
	return mm.m.isIgnored(relPath, isDir)
}

// LoadDir registers a nested .minigitignore found while walking baseDir.
func (mm *Matcher) LoadDir(workDir, baseDir string) {
	mm.m.loadDir(workDir, baseDir)
}

// loadIgnoreMatcher loads the root .minigitignore for workDir. Nested
// .minigitignore files are picked up lazily by loadDir as StagePath walks
// the tree, since their scope is relative to the directory they live in.
func loadIgnoreMatcher(workDir string) *ignoreMatcher {
	m := &ignoreMatcher{}
	m.loadFile(workDir, "")
	return m
}

// loadDir loads workDir/baseDir/.minigitignore into the matcher, if present.
func (m *ignoreMatcher) loadDir(workDir, baseDir string) {
	m.loadFile(workDir, baseDir)
}

func (m *ignoreMatcher) loadFile(workDir, baseDir string) {
	path := filepath.Join(workDir, filepath.FromSlash(baseDir), ".minigitignore")
	f, err := os.Open(path) //nolint:gosec // path is built from the repository's own working directory
	if err != nil {
		return // absent is fine; ignore files are optional
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Default().Debug("close ignore file", "path", path, "error", cerr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		pat, ok := parseIgnoreLine(scanner.Text())
		if !ok {
			continue
		}
		m.rules = append(m.rules, ignoreRule{baseDir: baseDir, pat: pat})
	}
}

// isIgnored reports whether relPath (forward-slash separated, relative to
// the repository root) should be skipped by StagePath.
func (m *ignoreMatcher) isIgnored(relPath string, isDir bool) bool {
	ignored := false
	for _, rule := range m.rules {
		if rule.pat.dirOnly && !isDir {
			continue
		}
		if matchPattern(rule, relPath) {
			ignored = !rule.pat.negated
		}
	}
	return ignored
}

func parseIgnoreLine(line string) (ignorePattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || line[0] == '#' {
		return ignorePattern{}, false
	}

	var pat ignorePattern
	if line[0] == '!' {
		pat.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		pat.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		pat.anchored = true
		line = line[1:]
	}
	if strings.Contains(line, "/") {
		remainder := strings.TrimPrefix(line, "**/")
		if strings.Contains(remainder, "/") || !strings.HasPrefix(line, "**/") {
			pat.anchored = true
		}
	}
	pat.pattern = line
	return pat, line != ""
}

func matchPattern(rule ignoreRule, relPath string) bool {
	pat := rule.pat
	target := relPath
	if rule.baseDir != "" {
		if !strings.HasPrefix(relPath, rule.baseDir) {
			return false
		}
		target = relPath[len(rule.baseDir):]
	}

	if pat.anchored {
		return matchGlob(pat.pattern, target)
	}

	base := target
	if idx := strings.LastIndex(target, "/"); idx >= 0 {
		base = target[idx+1:]
	}
	if matchGlob(pat.pattern, base) {
		return true
	}
	return matchGlob(pat.pattern, target)
}

// matchGlob matches a gitignore-style glob against a path, understanding
// "**" as zero-or-more path components (filepath.Match alone does not).
func matchGlob(pattern, name string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, name)
		return matched
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(patParts, nameParts []string) bool {
	pi, ni := 0, 0
	for pi < len(patParts) && ni < len(nameParts) {
		if patParts[pi] == "**" {
			pi++
			if pi >= len(patParts) {
				return true
			}
			for tryNi := ni; tryNi <= len(nameParts); tryNi++ {
				if matchSegments(patParts[pi:], nameParts[tryNi:]) {
					return true
				}
			}
			return false
		}
		matched, _ := filepath.Match(patParts[pi], nameParts[ni])
		if !matched {
			return false
		}
		pi++
		ni++
	}
	for pi < len(patParts) {
		if patParts[pi] != "**" {
			return false
		}
		pi++
	}
	return ni >= len(nameParts)
}
