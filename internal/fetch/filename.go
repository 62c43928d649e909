package fetch

import (
	"fmt"
	"strings"
)

// imageExtensions are the URL path suffixes accepted without consulting the
// response content type.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".bmp":  true,
	".ico":  true,
}

// contentTypeExtensions maps declared media types to file extensions.
var contentTypeExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/x-icon":  ".ico",
}

// ExtensionFor derives an extension from the URL path suffix when it is a
// recognized image extension, else from the declared content type, else
// defaults to .jpg.
func ExtensionFor(url, contentType string) string {
	path := url
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	last := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		last = path[i+1:]
	}
	if i := strings.LastIndex(last, "."); i >= 0 {
		ext := strings.ToLower(last[i:])
		if imageExtensions[ext] {
			return ext
		}
	}

	return extensionForContentType(contentType)
}

// extensionForContentType maps a media type to an extension, defaulting to
// .jpg when the type is missing or unknown.
func extensionForContentType(contentType string) string {
	for mime, ext := range contentTypeExtensions {
		if strings.Contains(contentType, mime) {
			return ext
		}
	}
	return ".jpg"
}

// localFileName builds the zero-padded sequential filename for an ordinal.
// The pad width follows the total asset count, two digits minimum, so names
// sort in ordinal order.
func localFileName(ordinal, total int, ext string) string {
	width := len(fmt.Sprint(total))
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("%0*d%s", width, ordinal, ext)
}
