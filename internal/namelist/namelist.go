// Package namelist renders configuration templates for the external
// preprocessing executables. Templates are plain text files carrying
// placeholder tokens of the form __NAME__; rendering is exact textual
// substitution and never touches the surrounding namelist syntax.
package namelist

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// placeholderRe matches the fixed lexical form of a placeholder token
var placeholderRe = regexp.MustCompile(`__([A-Z][A-Z0-9_]*)__`)

// Bindings maps placeholder names to the values substituted for them
type Bindings map[string]string

// Set binds a name, formatting non-string values the namelist way
func (b Bindings) Set(name string, value interface{}) {
	switch v := value.(type) {
	case string:
		b[name] = v
	case int:
		b[name] = strconv.Itoa(v)
	case float64:
		b[name] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b[name] = fmt.Sprintf("%v", v)
	}
}

// UnboundError reports placeholders present in a template that had no
// binding. Rendering with an incomplete binding map is a contract
// violation and aborts before any executable runs.
type UnboundError struct {
	Names []string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("unbound placeholders: %s", strings.Join(e.Names, ", "))
}

// Placeholders returns the distinct placeholder names in a template,
// sorted for stable output
func Placeholders(template string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render substitutes every placeholder occurrence in template with its
// bound value. It is a pure function: the template is not mutated and
// repeated calls with the same inputs yield byte-identical output.
//
// The second return value lists bindings that the template never
// references; callers surface these as warnings, not errors, since a
// shared binding set is rendered against several stage templates.
func Render(template string, b Bindings) (string, []string, error) {
	var unbound []string
	seenUnbound := make(map[string]struct{})
	used := make(map[string]struct{})

	out := placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[2 : len(tok)-2]
		val, ok := b[name]
		if !ok {
			if _, dup := seenUnbound[name]; !dup {
				seenUnbound[name] = struct{}{}
				unbound = append(unbound, name)
			}
			return tok
		}
		used[name] = struct{}{}
		return val
	})

	if len(unbound) > 0 {
		sort.Strings(unbound)
		return "", nil, &UnboundError{Names: unbound}
	}

	var unused []string
	for name := range b {
		if _, ok := used[name]; !ok {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)

	return out, unused, nil
}

// RenderFile reads a template from src, renders it, and writes the
// concrete artifact to dst. The source file is never rewritten; each
// render produces an independent artifact.
func RenderFile(src, dst string, b Bindings) ([]string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", src, err)
	}

	out, unused, err := Render(string(data), b)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", src, err)
	}

	if err := os.WriteFile(dst, []byte(out), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", dst, err)
	}

	return unused, nil
}

// PerDomain formats one value per domain the way namelists expect,
// e.g. "100000, 20000, 4000,"
func PerDomain(values []string) string {
	return strings.Join(values, ", ") + ","
}
