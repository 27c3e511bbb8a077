package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Attachment is a reference to an uploaded file in the blob store.
type Attachment struct {
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeType     string `json:"mime_type,omitempty"`
}

const (
	MaxAttachments         = 5
	MaxAttachmentSizeBytes = 10 * 1024 * 1024
	AttachmentURLExpiry    = 15 * time.Minute
)

// AllowedAttachmentTypes maps accepted MIME types to their usual extensions.
var AllowedAttachmentTypes = map[string][]string{
	"application/pdf":    {".pdf"},
	"application/msword": {".doc"},
	"text/plain":         {".txt"},

	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
	"image/heic": {".heic"},

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
}

// AttachmentUploadRequest asks for a presigned upload URL.
type AttachmentUploadRequest struct {
	FileName string `json:"original_name"`
	FileSize int64  `json:"size_bytes"`
	MimeType string `json:"mime_type"`
}

type AttachmentUploadResponse struct {
	UploadURL string     `json:"upload_url"`
	Path      string     `json:"path"`
	ExpiresAt string     `json:"expires_at"`
	Headers   UploadHint `json:"headers"`
}

// UploadHint lists headers the browser must send with the PUT for the
// signature to match.
type UploadHint struct {
	ContentType string `json:"Content-Type"`
}

type AttachmentDownloadResponse struct {
	DownloadURL string `json:"download_url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ExpiresAt   string `json:"expires_at"`
}

// AttachmentPrefix is the key prefix every object uploaded by userID lives
// under.
func AttachmentPrefix(userID int64) string {
	return fmt.Sprintf("requests/%d/", userID)
}

// GenerateS3Key builds requests/<user_id>/<token>-<sanitised name>.
func (req *AttachmentUploadRequest) GenerateS3Key(userID int64, token string) string {
	return AttachmentPrefix(userID) + token + "-" + SanitizeFileName(req.FileName)
}

// SanitizeFileName keeps letters, digits, dot, dash and underscore; anything
// else becomes an underscore. The extension is lower-cased.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		clean = "file"
	}
	if len(clean) > 100 {
		clean = clean[:100]
	}
	return clean + ext
}
