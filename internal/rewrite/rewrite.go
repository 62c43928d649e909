// Package rewrite substitutes original asset references in a document with
// their local replacements and wraps the result in a standalone shell.
package rewrite

import (
	"sort"
	"strings"

	"github.com/tmarche/bundle-api/internal/domain"
)

// BuildMapping derives the reference replacement map from a task's asset
// list after a run. Downloaded assets map to their local filename; failed
// assets map to their own original reference or to an empty string,
// depending on the task's failure policy.
func BuildMapping(assets []domain.AssetRecord, policy domain.FailurePolicy) map[string]string {
	mapping := make(map[string]string, len(assets))
	for i := range assets {
		asset := &assets[i]
		if asset.Status == domain.AssetStatusDownloaded && asset.LocalName != "" {
			mapping[asset.SourceRef] = asset.LocalName
			continue
		}
		if policy == domain.FailurePolicyKeepRemote {
			mapping[asset.SourceRef] = asset.SourceRef
		} else {
			mapping[asset.SourceRef] = ""
		}
	}
	return mapping
}

// Apply substitutes every occurrence of each original reference with its
// replacement. Substitution is literal, never regex-interpreted, and runs
// in descending reference-length order so a reference that is a substring
// of another cannot clobber the longer one. Empty replacements remove only
// the reference text itself, leaving the surrounding markup intact.
func Apply(doc string, mapping map[string]string) string {
	refs := make([]string, 0, len(mapping))
	for ref := range mapping {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if len(refs[i]) != len(refs[j]) {
			return len(refs[i]) > len(refs[j])
		}
		return refs[i] < refs[j]
	})

	for _, ref := range refs {
		replacement := mapping[ref]
		if replacement == ref {
			continue
		}
		doc = strings.ReplaceAll(doc, ref, replacement)
	}
	return doc
}

// documentShell is the minimal standalone frame wrapped around body content:
// doctype, charset, viewport, and a default responsive stylesheet.
const documentShell = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Offline Export</title>
    <style>
        body {
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            line-height: 1.6;
        }
        img {
            max-width: 100%;
            height: auto;
        }
    </style>
</head>
<body>
`

// WrapDocument frames the substituted body in the standalone document shell.
// Content that already begins with a doctype declaration passes through
// unchanged.
func WrapDocument(body string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), "<!doctype") {
		return body
	}
	return documentShell + body + "\n</body>\n</html>"
}
