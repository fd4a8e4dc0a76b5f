// Package makefile parses extended Makefiles: standard target/prerequisite/
// recipe syntax plus `#!ROOT_DEF` directives and `name[host|path]` target
// annotations.
package makefile

import (
	"strings"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/zerr"
)

// DirectivePrefix marks an extension directive line.
const DirectivePrefix = "#!"

type parser struct {
	vars    variables
	defs    *domain.RootDefs
	graph   *domain.Graph
	current *domain.Target
}

// Parse turns Makefile text into root definitions and a graph seed. Errors
// carry the 1-based line number of the offending line.
func Parse(content string) (*domain.Makefile, error) {
	p := &parser{
		vars:  make(variables),
		defs:  domain.NewRootDefs(),
		graph: domain.NewGraph(),
	}

	lines := splitContinuations(content)
	for _, ln := range lines {
		if err := p.parseLine(ln); err != nil {
			return nil, err
		}
	}

	return &domain.Makefile{RootDefs: p.defs, Graph: p.graph}, nil
}

// physicalLine is a logical line after `\` continuation joining, tagged with
// the number of its first physical line.
type physicalLine struct {
	text string
	num  int
}

func splitContinuations(content string) []physicalLine {
	raw := strings.Split(content, "\n")
	joined := make([]physicalLine, 0, len(raw))

	for i := 0; i < len(raw); i++ {
		start := i
		line := raw[i]
		for strings.HasSuffix(line, "\\") && i+1 < len(raw) {
			i++
			line = strings.TrimSuffix(line, "\\") + raw[i]
		}
		joined = append(joined, physicalLine{text: line, num: start + 1})
	}
	return joined
}

func (p *parser) parseLine(ln physicalLine) error {
	line := ln.text

	// Directives are parsed before comment stripping: they share the '#'.
	if strings.HasPrefix(line, DirectivePrefix) {
		return p.parseDirective(strings.TrimPrefix(line, DirectivePrefix), ln.num)
	}

	// Recipe lines belong to the most recent target header and keep their
	// text opaque apart from variable expansion.
	if strings.HasPrefix(line, "\t") {
		return p.parseRecipeLine(line, ln.num)
	}

	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}

	if isAssignment(line) {
		return p.parseAssignment(line, ln.num)
	}

	if strings.ContainsRune(line, ':') {
		return p.parseTargetHeader(line, ln.num)
	}

	return syntaxErr(ln.num, "expected a target, assignment, or directive")
}

func syntaxErr(line int, msg string) error {
	return zerr.With(zerr.Wrap(domain.ErrSyntax, msg), "line", line)
}

func (p *parser) parseDirective(rest string, num int) error {
	fields := strings.Fields(rest)
	if len(fields) == 0 || fields[0] != "ROOT_DEF" {
		return syntaxErr(num, "unknown directive")
	}

	// Whitespace around '=' is free-form: rejoin and split on the first '='.
	spec := strings.Join(fields[1:], " ")
	host, path, ok := strings.Cut(spec, "=")
	host = strings.TrimSpace(host)
	path = strings.TrimSpace(path)
	if !ok || host == "" || path == "" {
		return syntaxErr(num, "ROOT_DEF wants '<host> = <path>'")
	}

	if err := p.defs.Add(host, path); err != nil {
		return zerr.With(err, "line", num)
	}
	return nil
}

func (p *parser) parseRecipeLine(line string, num int) error {
	if p.current == nil {
		return syntaxErr(num, "recipe line outside a target")
	}
	cmd := strings.TrimRight(strings.TrimPrefix(line, "\t"), " \t")
	if cmd == "" {
		return nil
	}
	p.current.Recipe = append(p.current.Recipe, p.expandRecipe(cmd, p.current))
	return nil
}

// isAssignment reports whether line is a variable assignment rather than a
// rule. '=' before any ':' is an assignment, and so is ':=' (the colon is
// part of the operator).
func isAssignment(line string) bool {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return false
	}
	colon := strings.IndexByte(line, ':')
	return colon < 0 || eq < colon || colon == eq-1
}

func (p *parser) parseAssignment(line string, num int) error {
	name, value, op := splitAssignment(line)
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return syntaxErr(num, "bad variable assignment")
	}

	value = strings.TrimSpace(value)
	switch op {
	case "?=":
		if _, defined := p.vars[name]; defined {
			return nil
		}
		p.vars[name] = p.vars.expand(value)
	case "+=":
		prev := p.vars[name]
		if prev != "" {
			prev += " "
		}
		p.vars[name] = prev + p.vars.expand(value)
	default: // "=" and ":=" both expand eagerly in this subset
		p.vars[name] = p.vars.expand(value)
	}
	p.current = nil
	return nil
}

func splitAssignment(line string) (name, value, op string) {
	for _, candidate := range []string{"?=", "+=", ":=", "="} {
		if idx := strings.Index(line, candidate); idx >= 0 {
			return line[:idx], line[idx+len(candidate):], candidate
		}
	}
	return line, "", ""
}

func (p *parser) parseTargetHeader(line string, num int) error {
	left, right, ok := cutRuleColon(line)
	if !ok {
		return syntaxErr(num, "expected ':' after target name")
	}

	prereqs := strings.Fields(p.vars.expand(right))

	names := strings.Fields(p.vars.expand(left))
	if len(names) == 0 {
		return syntaxErr(num, "rule without a target name")
	}

	for _, name := range names {
		target, err := parseAnnotatedName(name, num)
		if err != nil {
			return err
		}
		target.Prereqs = append([]string(nil), prereqs...)
		target.Line = num

		if err := p.graph.AddTarget(target); err != nil {
			return zerr.With(err, "line", num)
		}
		p.current = target
	}

	// Recipe lines attach to the header above them. Multi-name headers are
	// prerequisite-only rules here.
	if len(names) > 1 {
		p.current = nil
	}
	return nil
}

// cutRuleColon cuts line at the first ':' outside a bracket annotation, so
// socket hosts like `a.o[10.0.0.2:9000]` keep their port.
func cutRuleColon(line string) (left, right string, ok bool) {
	depth := 0
	for i, r := range line {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				return line[:i], line[i+1:], true
			}
		}
	}
	return line, "", false
}

// parseAnnotatedName splits `name[host]` or `name[host|path]` into a target.
// A name without brackets runs on the coordinator.
func parseAnnotatedName(name string, num int) (*domain.Target, error) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		if strings.ContainsRune(name, ']') {
			return nil, syntaxErr(num, "unmatched ']' in target name")
		}
		return &domain.Target{Name: name}, nil
	}

	if !strings.HasSuffix(name, "]") || open == 0 {
		return nil, syntaxErr(num, "malformed host annotation")
	}

	inside := name[open+1 : len(name)-1]
	target := &domain.Target{Name: name[:open]}

	host, path, hasPath := strings.Cut(inside, "|")
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, syntaxErr(num, "empty host annotation")
	}
	target.Host = host
	if hasPath {
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, syntaxErr(num, "empty path in host annotation")
		}
		target.Dir = path
	}
	return target, nil
}

// expandRecipe applies the variable table plus the automatic variables make
// defines per rule: $@ (target), $< (first prerequisite), $^ (all
// prerequisites, declared order, deduplicated).
func (p *parser) expandRecipe(cmd string, t *domain.Target) string {
	auto := variables{
		"@": t.Name,
		"^": strings.Join(dedup(t.Prereqs), " "),
	}
	if len(t.Prereqs) > 0 {
		auto["<"] = t.Prereqs[0]
	} else {
		auto["<"] = ""
	}

	merged := make(variables, len(p.vars)+len(auto))
	for k, v := range p.vars {
		merged[k] = v
	}
	for k, v := range auto {
		merged[k] = v
	}
	return merged.expand(cmd)
}

func dedup(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
