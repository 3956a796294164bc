// Package validation performs client-side pre-flight checks on candidate
// uploads. Checks consult only the file name and size, never the bytes.
package validation

import (
	"math"
	"strconv"
	"strings"

	"github.com/tendant/necronet/pkg/necronet"
)

// MaxFileSize is the largest accepted upload (50 MiB).
const MaxFileSize int64 = 50 * 1024 * 1024

// AllowedExtensions lists the accepted upload extensions, lower case with dot.
var AllowedExtensions = []string{
	".swf",
	".html",
	".htm",
	".png",
	".jpg",
	".jpeg",
	".gif",
	".webp",
	".zip",
}

// Rejection messages, reported one at a time in check order.
const (
	MessageNoFile      = "No artifact detected. Please select a file."
	MessageEmptyFile   = "This artifact appears to be empty..."
	MessageTooLarge    = "This artifact is too heavy for our museum (max 50MB)"
	MessageInvalidType = "Only ancient relics accepted (swf, html, images, zip)"
)

// Validate checks f against the upload policy. The first failing check
// wins: missing file, empty file, oversized file, disallowed extension.
func Validate(f *necronet.File) necronet.ValidationResult {
	if f == nil {
		return invalid(MessageNoFile)
	}
	if f.Size == 0 {
		return invalid(MessageEmptyFile)
	}
	if !IsWithinSizeLimit(f.Size) {
		return invalid(MessageTooLarge)
	}
	if !IsAllowedExtension(f.Name) {
		return invalid(MessageInvalidType)
	}
	return necronet.ValidationResult{Valid: true}
}

func invalid(msg string) necronet.ValidationResult {
	return necronet.ValidationResult{Valid: false, Error: msg}
}

// FileExtension returns the lower-cased suffix of name starting at the last
// dot, or "" when name has no dot.
func FileExtension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

// IsAllowedExtension reports whether name has an accepted extension.
func IsAllowedExtension(name string) bool {
	ext := FileExtension(name)
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// IsWithinSizeLimit reports whether 0 < size <= MaxFileSize.
func IsWithinSizeLimit(size int64) bool {
	return size > 0 && size <= MaxFileSize
}

// ClassifyByExtension maps a file name to an advisory artifact type.
// The service assigns the authoritative type on upload.
func ClassifyByExtension(name string) necronet.ArtifactType {
	switch FileExtension(name) {
	case ".swf":
		return necronet.ArtifactTypeFlash
	case ".html", ".htm":
		return necronet.ArtifactTypeHTML
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return necronet.ArtifactTypeImage
	case ".zip", ".tar", ".gz":
		return necronet.ArtifactTypeArchive
	default:
		return necronet.ArtifactTypeOther
	}
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with one decimal in base-1024 units,
// e.g. "0 B", "1.5 KB", "10 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	rounded := math.Round(value*10) / 10
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[i]
}
