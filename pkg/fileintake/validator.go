package fileintake

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"
)

// ValidationPolicy configures the upload validator.
type ValidationPolicy struct {
	// MaxSizeBytes caps the upload size. Zero means the default (20 MiB).
	MaxSizeBytes int64

	// AllowedExtensions is the lowercase extension allow-list, without dots.
	// Nil means the default resume-document set.
	AllowedExtensions []string

	// SniffContent cross-checks the declared media type against the bytes.
	SniffContent bool
}

const defaultMaxSizeBytes = 20 << 20

func defaultAllowedExtensions() []string {
	return []string{"pdf", "doc", "docx", "txt", "rtf", "png", "jpg", "jpeg"}
}

// sniffCompat maps an extension to the http.DetectContentType results that
// are acceptable for it. DOCX is a zip container and legacy DOC sniffs as
// octet-stream, so those are wider than the declared type.
var sniffCompat = map[string][]string{
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword", "application/octet-stream"},
	"docx": {"application/zip", "application/octet-stream"},
	"txt":  {"text/plain"},
	"rtf":  {"text/rtf", "application/rtf", "text/plain"},
	"png":  {"image/png"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
}

// declaredCompat maps an extension to the client-declared media types that
// are acceptable for it. The declared type is replayed as the download
// Content-Type, so anything outside this set is rejected rather than stored.
var declaredCompat = map[string][]string{
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	"txt":  {"text/plain"},
	"rtf":  {"text/rtf", "application/rtf", "text/plain"},
	"png":  {"image/png"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
}

// Validated is the outcome of a successful validation pass.
type Validated struct {
	DisplayName string
	Extension   string
	MediaType   string
	SizeBytes   int64
}

// Validator checks uploads against policy and sanitizes display names.
type Validator struct {
	policy ValidationPolicy
}

// NewValidator creates a Validator, filling zero policy fields with defaults.
func NewValidator(policy ValidationPolicy) *Validator {
	if policy.MaxSizeBytes <= 0 {
		policy.MaxSizeBytes = defaultMaxSizeBytes
	}
	if policy.AllowedExtensions == nil {
		policy.AllowedExtensions = defaultAllowedExtensions()
	}
	return &Validator{policy: policy}
}

// Validate checks size, extension and media type, and produces the sanitized
// display name. It runs before any hashing or storage work and fails with a
// *ValidationError carrying a specific reason.
func (v *Validator) Validate(data []byte, declaredName, declaredType string) (*Validated, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Reason: ReasonEmptyFile, Detail: "upload is empty"}
	}
	if int64(len(data)) > v.policy.MaxSizeBytes {
		return nil, &ValidationError{
			Reason: ReasonTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(data), v.policy.MaxSizeBytes),
		}
	}

	name := SanitizeDisplayName(declaredName)
	if name == "" {
		return nil, &ValidationError{Reason: ReasonBadName, Detail: "file name is empty after sanitization"}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !v.extensionAllowed(ext) {
		return nil, &ValidationError{
			Reason: ReasonUnsupportedType,
			Detail: fmt.Sprintf("extension %q is not allowed", ext),
		}
	}

	declared := normalizeMediaType(declaredType)
	if declared == "application/octet-stream" {
		// The generic multipart default carries no type information.
		declared = ""
	}
	if declared != "" && !declaredMatches(ext, declared) {
		return nil, &ValidationError{
			Reason: ReasonTypeMismatch,
			Detail: fmt.Sprintf("declared media type %q does not match extension %q", declared, ext),
		}
	}

	if v.policy.SniffContent {
		sniffed := sniffMediaType(data)
		if !sniffMatches(ext, sniffed) {
			return nil, &ValidationError{
				Reason: ReasonTypeMismatch,
				Detail: fmt.Sprintf("content sniffed as %q does not match extension %q", sniffed, ext),
			}
		}
	}

	mediaType := declared
	if mediaType == "" {
		mediaType = sniffMediaType(data)
	}

	return &Validated{
		DisplayName: name,
		Extension:   ext,
		MediaType:   mediaType,
		SizeBytes:   int64(len(data)),
	}, nil
}

func (v *Validator) extensionAllowed(ext string) bool {
	for _, allowed := range v.policy.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func sniffMediaType(data []byte) string {
	n := len(data)
	if n > 512 {
		n = 512
	}
	mt := http.DetectContentType(data[:n])
	// DetectContentType appends a charset for text types.
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}

// normalizeMediaType lowercases a declared media type and drops parameters
// such as charset.
func normalizeMediaType(mt string) string {
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = mt[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func declaredMatches(ext, declared string) bool {
	compat, ok := declaredCompat[ext]
	if !ok {
		// No declared-type knowledge for this extension; accept.
		return true
	}
	for _, c := range compat {
		if declared == c {
			return true
		}
	}
	return false
}

func sniffMatches(ext, sniffed string) bool {
	compat, ok := sniffCompat[ext]
	if !ok {
		// No sniff knowledge for this extension; accept.
		return true
	}
	for _, c := range compat {
		if sniffed == c {
			return true
		}
	}
	return false
}

// SanitizeDisplayName strips path separators and control characters from a
// declared filename and collapses runs of whitespace to single spaces.
func SanitizeDisplayName(name string) string {
	// Take the final path element for both separator conventions.
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.Join(strings.Fields(b.String()), " ")

	// Reject names that are only dots (".", "..") after cleanup.
	if strings.Trim(name, ".") == "" {
		return ""
	}
	return name
}
