// Package symbolmap builds the per-reindex symbol map from a stream of
// CodeNode records and normalizes raw edge target strings into
// canonical lookup keys.
package symbolmap

import "strings"

// scopePrefixes are stripped from the front of a target string; the
// original-with-prefix form is retained by the caller as a secondary
// candidate (§4.4 rule 7).
var scopePrefixes = []string{"self::", "super::", "crate::", "this.", "::"}

// Normalize applies the eight normalization rules of §4.4, in order,
// and returns the canonical fully-qualified form. Every syntactic
// variant of the same underlying name normalizes to the same string
// (the "normalization law" tested in normalizer_test.go).
func Normalize(target string) string {
	s := strings.TrimSpace(target)   // 1. trim whitespace
	s = stripCallArguments(s)        // 2. strip trailing call arguments
	s = stripGenericArguments(s)     // 3. strip balanced <...> groups
	s = collapseDoubledSeparators(s) // 3b. collapse "::" left doubled by a removed generic
	s = stripMacroMarker(s)          // 4. strip trailing "!" per segment
	s = stripRawIdentifierPrefix(s)  // 5. strip "r#" per segment
	s = stripTraitQualification(s)   // 6. collapse <Type as Trait>::method forms
	s = stripScopePrefix(s)          // 7. strip leading scope prefixes
	return s
}

// ShortName returns the final scope-separator-delimited segment of a
// normalized name (§4.4 rule 8).
func ShortName(normalized string) string {
	segs := splitScope(normalized)
	if len(segs) == 0 {
		return normalized
	}
	return segs[len(segs)-1]
}

// ResolveCandidates returns the ordered list of keys the resolver
// probes for target, per §4.4's contract: canonical FQN, original
// string, short name (if distinct from the first two).
func ResolveCandidates(target string) []string {
	canonical := Normalize(target)
	candidates := []string{canonical}
	if target != canonical {
		candidates = append(candidates, target)
	}
	short := ShortName(canonical)
	if short != canonical && short != target {
		candidates = append(candidates, short)
	}
	return candidates
}

// stripCallArguments removes everything from the first unbalanced "("
// to its matching ")". A call site like "pkg::Foo(a, b)" becomes
// "pkg::Foo"; an unmatched "(" degrades to stripping to end of string
// rather than panicking.
func stripCallArguments(s string) string {
	i := strings.IndexByte(s, '(')
	if i < 0 {
		return s
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i] + s[j+1:]
			}
		}
	}
	return s[:i]
}

// stripGenericArguments removes balanced "<...>" groups anywhere in
// the string (not just at the end), so "Type<T>::method" becomes
// "Type::method". A leading "<Type as Trait>" group is kept intact so
// that stripTraitQualification (rule 6) can collapse it.
func stripGenericArguments(s string) string {
	if strings.HasPrefix(s, "<") {
		if end := strings.Index(s, ">"); end > 0 && strings.Contains(s[1:end], " as ") {
			return s[:end+1] + stripGenericArguments(s[end+1:])
		}
	}
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}

// collapseDoubledSeparators collapses a run of "::" left behind when a
// generic argument group sat directly between two scope separators,
// e.g. "mod::Type::<T>::method" stripping to "mod::Type::::method"
// before this pass, "mod::Type::method" after it.
func collapseDoubledSeparators(s string) string {
	for strings.Contains(s, "::::") {
		s = strings.ReplaceAll(s, "::::", "::")
	}
	return s
}

// stripMacroMarker strips a trailing "!" from each scope-separated
// segment, e.g. "vec!" -> "vec", "mod::println!" -> "mod::println".
func stripMacroMarker(s string) string {
	segs := splitScope(s)
	for i, seg := range segs {
		segs[i] = strings.TrimSuffix(seg, "!")
	}
	return strings.Join(segs, "::")
}

// stripRawIdentifierPrefix strips a leading "r#" from each segment,
// e.g. "r#type::r#fn" -> "type::fn".
func stripRawIdentifierPrefix(s string) string {
	segs := splitScope(s)
	for i, seg := range segs {
		segs[i] = strings.TrimPrefix(seg, "r#")
	}
	return strings.Join(segs, "::")
}

// stripTraitQualification collapses "<Type as Trait>::method" and
// "Type::as::Trait::method" forms to "Type::method" where
// unambiguous. Ambiguous forms (the qualification doesn't match either
// recognizable shape) are left untouched; the resolver's Exact stage
// still probes the original, unnormalized string, and ResolveCandidates
// lists it as the second candidate.
func stripTraitQualification(s string) string {
	if strings.HasPrefix(s, "<") {
		// "<Type as Trait>::method" -> "Type::method"
		end := strings.Index(s, ">")
		if end > 0 {
			inner := s[1:end]
			if idx := strings.Index(inner, " as "); idx >= 0 {
				typ := strings.TrimSpace(inner[:idx])
				rest := strings.TrimPrefix(s[end+1:], "::")
				if rest == "" {
					return typ
				}
				return typ + "::" + rest
			}
		}
		return s
	}

	// "Type::as::Trait::method" -> "Type::method"
	segs := splitScope(s)
	for i := 0; i < len(segs)-2; i++ {
		if segs[i+1] == "as" {
			collapsed := append([]string{segs[i]}, segs[i+3:]...)
			return strings.Join(collapsed, "::")
		}
	}
	return s
}

// stripScopePrefix removes a single leading scope prefix from
// scopePrefixes, if present.
func stripScopePrefix(s string) string {
	for _, prefix := range scopePrefixes {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

// splitScope splits on the canonical "::" scope separator. Language
// extractors are responsible for mapping their own separator (e.g.
// Go's "."  or Python's ".") to "::" before handing targets to the
// resolver; this keeps the normalizer language-agnostic per §9's
// capability-set design.
func splitScope(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "::")
}
