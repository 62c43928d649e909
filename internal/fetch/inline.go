package fetch

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tmarche/bundle-api/internal/domain"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// base64Alphabet is used by the lenient decode path to drop stray characters
// that editors sometimes leave inside pasted data URIs.
const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

// DecodeInline parses a data:<media-type>;base64,<data> payload and writes
// the decoded bytes into destDir under the sequential filename scheme.
// Parse or decode failures are captured on the returned record. Exactly one
// attempt is ever made; there is nothing to retry.
func (f *Fetcher) DecodeInline(payload, destDir string, ordinal, total int) domain.AssetRecord {
	record := domain.AssetRecord{
		SourceRef: payload,
		Status:    domain.AssetStatusDownloading,
		Ordinal:   ordinal,
		Attempts:  1,
	}

	header, data, found := strings.Cut(payload, ",")
	if !found {
		record.Status = domain.AssetStatusFailed
		record.Error = "malformed data URI: missing comma separator"
		return record
	}

	mediaType, _, _ := strings.Cut(header, ";")
	mediaType = strings.TrimPrefix(mediaType, "data:")
	ext := extensionForContentType(mediaType)

	data = whitespacePattern.ReplaceAllString(data, "")

	decoded, err := decodeBase64(data)
	if err != nil {
		record.Status = domain.AssetStatusFailed
		record.Error = err.Error()
		return record
	}

	name := localFileName(ordinal, total, ext)
	if err := os.WriteFile(filepath.Join(destDir, name), decoded, 0o644); err != nil {
		record.Status = domain.AssetStatusFailed
		record.Error = fmt.Sprintf("write failed: %v", err)
		return record
	}

	record.Status = domain.AssetStatusDownloaded
	record.LocalName = "images/" + name
	record.Size = int64(len(decoded))
	return record
}

// decodeBase64 tries strict decoding first, then falls back to a lenient
// pass that strips out-of-alphabet characters and repairs padding.
func decodeBase64(data string) ([]byte, error) {
	decoded, err := base64.StdEncoding.Strict().DecodeString(data)
	if err == nil {
		return decoded, nil
	}

	var cleaned strings.Builder
	for _, r := range data {
		if strings.ContainsRune(base64Alphabet, r) {
			cleaned.WriteRune(r)
		}
	}

	repaired := strings.TrimRight(cleaned.String(), "=")
	if padding := len(repaired) % 4; padding != 0 {
		repaired += strings.Repeat("=", 4-padding)
	}

	decoded, err = base64.StdEncoding.DecodeString(repaired)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return decoded, nil
}
