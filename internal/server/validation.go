// validation.go - Upload name validation and sanitization helpers
package server

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// allowedExtensions defines file types permitted for upload
var allowedExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".zip":  true,
	".rar":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
}

// allowedFile reports whether filename carries a permitted extension,
// compared case-insensitively.
func allowedFile(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// maxFilenameBytes bounds a sanitized name; it matches the schema column.
const maxFilenameBytes = 255

// SanitizeFilename removes potentially dangerous characters from filenames.
// The result is valid UTF-8 and at most maxFilenameBytes long.
func SanitizeFilename(filename string) string {
	filename = strings.ToValidUTF8(filename, "")

	// Remove path separators
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	// Remove null bytes
	filename = strings.ReplaceAll(filename, "\x00", "")

	// Trim spaces and dots from start/end
	filename = strings.Trim(filename, " .")

	// Limit length, keeping the extension when it fits
	if len(filename) > maxFilenameBytes {
		ext := filepath.Ext(filename)
		if len(ext) >= maxFilenameBytes {
			filename = truncateUTF8(filename, maxFilenameBytes)
		} else {
			base := filename[:len(filename)-len(ext)]
			filename = truncateUTF8(base, maxFilenameBytes-len(ext)) + ext
		}
	}

	if filename == "" {
		filename = "unnamed"
	}

	return filename
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
