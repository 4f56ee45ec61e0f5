// Package parser extracts anti-forgery tokens and script references from
// upstream HTML. Extraction is pure and deterministic: the same document
// always yields the same token.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// ErrTokenNotFound is returned when no pattern matches the document.
var ErrTokenNotFound = errors.New("anti-forgery token not found")

// SignedTokenPattern matches the signed token blobs the site embeds in its
// script bundles. Groupless so the whole match is the token.
const SignedTokenPattern = `Im[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`

// DefaultTokenPatterns returns the ordered extraction patterns, most
// specific first. A pattern with a capture group yields group 1; a
// groupless pattern yields the whole match.
func DefaultTokenPatterns() []string {
	return []string{
		`(?i)<input[^>]+name=["']csrf_token["'][^>]+value=["']([^"']+)["']`,
		`(?i)<meta[^>]+name=["']csrf-token["'][^>]+content=["']([^"']+)["']`,
		`(?i)x-csrftoken["']?\s*[:=]\s*["']([^"']+)["']`,
		`(?i)csrf[_-]?token["']?\s*[:=]\s*["']([^"']+)["']`,
		`(?i)csrfToken["']?\s*[:=]\s*["']([^"']+)["']`,
		SignedTokenPattern,
		`(?i)\btoken["']?\s*[:=]\s*["']([^"']+)["']`,
	}
}

// Extractor applies an ordered pattern list to HTML or script text.
type Extractor struct {
	patterns []*regexp.Regexp
	signed   *regexp.Regexp
}

// NewExtractor compiles the given patterns, falling back to the defaults
// when none are provided.
func NewExtractor(patterns ...string) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = DefaultTokenPatterns()
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile token pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &Extractor{
		patterns: compiled,
		signed:   regexp.MustCompile(SignedTokenPattern),
	}, nil
}

// Extract returns the first token found in body. Patterns are tried in
// order and the first match wins.
func (e *Extractor) Extract(body string) (string, error) {
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if re.NumSubexp() > 0 {
			if m[1] != "" {
				return m[1], nil
			}
			continue
		}
		return m[0], nil
	}
	return "", ErrTokenNotFound
}

// ExtractSigned scans script text for a signed token blob. Used for the
// bundle fallback where only signed tokens appear.
func (e *Extractor) ExtractSigned(text string) (string, bool) {
	m := e.signed.FindString(text)
	return m, m != ""
}

var scriptSrcPattern = regexp.MustCompile(`(?i)<script[^>]+src=["']([^"']+)["']`)

// ScriptSources returns the absolute URLs of script tags referenced by
// body, de-duplicated, in document order. References that do not resolve
// against base are skipped.
func ScriptSources(body string, base *url.URL) []string {
	matches := scriptSrcPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		ref, err := url.Parse(m[1])
		if err != nil {
			continue
		}
		abs := ref.String()
		if base != nil {
			abs = base.ResolveReference(ref).String()
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}
