// Package extract discovers image references in rich-text markup.
//
// Discovery is regex-based and deliberately heuristic: the input is editor
// output, not arbitrary HTML, and a best-effort pattern matcher over it is
// the intended behavior. Ordering and de-duplication are the contract here,
// not full markup comprehension.
package extract

import (
	"regexp"
	"strings"
)

// Remote reference patterns, checked in this order. Discovery is
// pattern-major: every match of a pattern is collected before the next
// pattern runs, so a URL appearing only in a CSS declaration orders after
// all <img src> URLs no matter where it sits in the document.
var remotePatterns = []*regexp.Regexp{
	// <img src="...">
	regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`),
	// lazy-load variants
	regexp.MustCompile(`(?i)<img[^>]+data-src=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<img[^>]+data-original=["']([^"']+)["']`),
	// generic background-image attribute on any element
	regexp.MustCompile(`(?i)data-background-image=["']([^"']+)["']`),
	// CSS declarations
	regexp.MustCompile(`(?i)background-image\s*:\s*url\(["']?([^"')\s]+)["']?\)`),
	regexp.MustCompile(`(?i)background\s*:[^;]*url\(["']?([^"')\s]+)["']?\)`),
	regexp.MustCompile(`(?i)list-style-image\s*:\s*url\(["']?([^"')\s]+)["']?\)`),
	regexp.MustCompile(`(?i)content\s*:\s*url\(["']?([^"')\s]+)["']?\)`),
}

// inlinePattern matches base64-encoded data URIs. Whitespace inside the
// payload is tolerated; the decoder strips it.
var inlinePattern = regexp.MustCompile(`(?i)data:image/[^;]+;base64,[A-Za-z0-9+/=\s]+`)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&quot;", `"`,
	"&#39;", "'",
	"&lt;", "<",
	"&gt;", ">",
)

// RemoteRefs returns every remote image reference found in the document,
// HTML-entity-decoded and quote-stripped, de-duplicated by exact decoded
// string. Order is first-seen within the pattern-major traversal above, not
// document position. data: scheme values are excluded; they belong to
// InlineRefs.
func RemoteRefs(doc string) []string {
	var refs []string
	seen := make(map[string]struct{})

	for _, pattern := range remotePatterns {
		for _, match := range pattern.FindAllStringSubmatch(doc, -1) {
			ref := decodeRef(match[1])
			if ref == "" || strings.HasPrefix(ref, "data:") {
				continue
			}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}

	return refs
}

// InlineRefs returns every inline-encoded image payload in discovery order,
// de-duplicated by exact string.
func InlineRefs(doc string) []string {
	var refs []string
	seen := make(map[string]struct{})

	for _, match := range inlinePattern.FindAllString(doc, -1) {
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		refs = append(refs, match)
	}

	return refs
}

// CapRefs enforces the combined asset count limit. Inline payloads fill the
// cap first; remote references are truncated before inline payloads are.
func CapRefs(inline, remote []string, max int) ([]string, []string) {
	if len(inline) >= max {
		return inline[:max], nil
	}
	if remaining := max - len(inline); len(remote) > remaining {
		remote = remote[:remaining]
	}
	return inline, remote
}

// decodeRef normalizes a raw attribute or CSS value into a comparable
// reference string.
func decodeRef(raw string) string {
	decoded := entityReplacer.Replace(raw)
	decoded = strings.TrimSpace(decoded)
	decoded = strings.Trim(decoded, `"'`)
	return decoded
}
