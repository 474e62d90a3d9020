package docstore

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	extendedFilename = regexp.MustCompile(`(?i)(?:^|;)\s*filename\*\s*=\s*("[^"]*"|[^;]+)`)
	plainFilename    = regexp.MustCompile(`(?i)(?:^|;)\s*filename\s*=\s*("(?:[^"\\]|\\.)*"|[^;]+)`)
	illegalChars     = strings.NewReplacer("<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_")
)

var mimeExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"text/plain": ".txt",
}

// ResolveFilename picks the name a downloaded payload is saved under: the
// Content-Disposition filename (extended form first), else the last URL path
// segment when it has an extension, else document-<id> with an extension
// inferred from contentType. The result is always sanitized.
func ResolveFilename(contentDisposition, rawURL, contentType, id string) string {
	if name, ok := FilenameFromContentDisposition(contentDisposition); ok {
		return SanitizeFilename(name)
	}
	if name, ok := FilenameFromURL(rawURL); ok {
		return SanitizeFilename(name)
	}
	base := "document"
	if id != "" {
		base += "-" + id
	}
	return SanitizeFilename(base + ExtensionForMIME(contentType))
}

// FilenameFromContentDisposition extracts filename* (RFC 5987, percent
// encoded) or, failing that, filename from a Content-Disposition value.
func FilenameFromContentDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	if m := extendedFilename.FindStringSubmatch(header); m != nil {
		value := strings.Trim(strings.TrimSpace(m[1]), `"`)
		// charset'language'percent-encoded
		if parts := strings.SplitN(value, "'", 3); len(parts) == 3 {
			value = parts[2]
		}
		if decoded, err := url.PathUnescape(value); err == nil && strings.TrimSpace(decoded) != "" {
			return decoded, true
		}
	}
	if m := plainFilename.FindStringSubmatch(header); m != nil {
		value := strings.TrimSpace(m[1])
		if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
			value = strings.ReplaceAll(value[1:len(value)-1], `\"`, `"`)
		}
		if strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}

// FilenameFromURL returns the last path segment of rawURL if it carries a
// file extension.
func FilenameFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "", false
	}
	segment := path.Base(u.Path)
	if segment == "." || segment == "/" {
		return "", false
	}
	ext := path.Ext(segment)
	if ext == "" || ext == segment || len(ext) < 2 {
		return "", false
	}
	return segment, true
}

// ExtensionForMIME maps a content type to a file extension, defaulting to .pdf.
func ExtensionForMIME(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	if ext, ok := mimeExtensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return ".pdf"
}

// SanitizeFilename replaces characters that are illegal in common
// filesystems with an underscore.
func SanitizeFilename(name string) string {
	return illegalChars.Replace(name)
}
