// Package codegate screens Python source submitted for execution inside
// the host before it reaches the interpreter. It is a syntactic,
// pattern-based filter: a denylist of dangerous constructs plus an
// allowlist of importable modules. It is a mitigation against accidents
// and casual misuse, not a sandbox. A determined author can evade string
// scanning, and callers must not present it as isolation.
package codegate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Verdict is the outcome of validating one code submission.
type Verdict struct {
	Allowed      bool
	ViolatedRule string
}

// defaultDenyPatterns match constructs that spawn processes, evaluate
// dynamic code, touch the filesystem destructively, or open network
// channels from inside the host.
var defaultDenyPatterns = []string{
	`\bos\.system\b`,
	`\bsubprocess\b`,
	`\b__import__\b`,
	`\beval\s*\(`,
	`\bexec\s*\(`,
	`\bopen\s*\([^)]*['"][wa]`, // writing to files
	`\bshutil\.rmtree\b`,
	`\bos\.remove\b`,
	`\bos\.unlink\b`,
	`\bos\.rmdir\b`,
	`\bsocket\b`,
	`\brequests\b`,
	`\burllib\b`,
	`\bhttp\b`,
}

// defaultAllowedImports are the modules host scripts may import: the
// host's own API plus a small standard-library set with no I/O surface.
var defaultAllowedImports = []string{
	"bpy", "bmesh", "mathutils", "math", "random", "json", "re",
	"collections", "itertools", "functools", "typing",
}

var (
	fromImportRe  = regexp.MustCompile(`^\s*from\s+(\w+(?:\.\w+)*)\s+import`)
	plainImportRe = regexp.MustCompile(`^\s*import\s+(\w+(?:\.\w+)*)`)
)

// Options configures a Gate beyond its built-in policy.
type Options struct {
	// EnableExecution is the global kill switch. When false, every
	// submission is rejected before any pattern is consulted.
	EnableExecution bool

	// ExtraDenyPatterns are additional regular expressions to reject.
	ExtraDenyPatterns []string

	// ExtraAllowedImports extends the import allowlist.
	ExtraAllowedImports []string
}

// Gate validates code submissions against a fixed policy. A Gate is
// immutable after New, so Validate is a pure function of its input.
type Gate struct {
	enabled bool
	deny    []denyRule
	allowed map[string]struct{}
}

type denyRule struct {
	source string
	re     *regexp.Regexp
}

// New compiles the gate policy. Invalid extra patterns are a
// configuration error, reported up front rather than skipped.
func New(opts Options) (*Gate, error) {
	g := &Gate{
		enabled: opts.EnableExecution,
		allowed: make(map[string]struct{}, len(defaultAllowedImports)+len(opts.ExtraAllowedImports)),
	}

	for _, pat := range defaultDenyPatterns {
		g.deny = append(g.deny, denyRule{source: pat, re: regexp.MustCompile(`(?i)` + pat)})
	}
	for _, pat := range opts.ExtraDenyPatterns {
		re, err := regexp.Compile(`(?i)` + pat)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", pat, err)
		}
		g.deny = append(g.deny, denyRule{source: pat, re: re})
	}

	for _, mod := range defaultAllowedImports {
		g.allowed[mod] = struct{}{}
	}
	for _, mod := range opts.ExtraAllowedImports {
		g.allowed[strings.TrimSpace(mod)] = struct{}{}
	}
	return g, nil
}

// Enabled reports whether code execution is switched on at all.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Validate scans code and returns the first violated rule, if any.
// Deny patterns are checked before imports, and within each phase the
// first hit wins, so identical input always yields an identical verdict.
func (g *Gate) Validate(code string) Verdict {
	if !g.enabled {
		return Verdict{Allowed: false, ViolatedRule: "code execution is disabled"}
	}

	for _, rule := range g.deny {
		if rule.re.MatchString(code) {
			return Verdict{Allowed: false, ViolatedRule: fmt.Sprintf("dangerous pattern %s", rule.source)}
		}
	}

	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		module := ""
		if m := fromImportRe.FindStringSubmatch(line); m != nil {
			module = m[1]
		} else if m := plainImportRe.FindStringSubmatch(line); m != nil {
			module = m[1]
		}
		if module == "" {
			continue
		}

		base := strings.SplitN(module, ".", 2)[0]
		if _, ok := g.allowed[base]; !ok {
			return Verdict{
				Allowed:      false,
				ViolatedRule: fmt.Sprintf("import of %q is not allowed (allowed: %s)", module, g.allowedList()),
			}
		}
	}

	return Verdict{Allowed: true}
}

func (g *Gate) allowedList() string {
	mods := make([]string, 0, len(g.allowed))
	for mod := range g.allowed {
		mods = append(mods, mod)
	}
	sort.Strings(mods)
	return strings.Join(mods, ", ")
}
