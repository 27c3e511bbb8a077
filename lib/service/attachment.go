package service

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homecare/lib/clients"
	"homecare/lib/data"
	"homecare/lib/models"
)

// AttachmentService hands out presigned URLs for request attachments and
// verifies uploads before a request may reference them.
type AttachmentService struct {
	Objects  clients.ObjectStore
	Requests data.RequestRepository
	Logger   *logrus.Logger
	Now      func() time.Time
	NewToken func() string
}

func (s *AttachmentService) token() string {
	if s.NewToken != nil {
		return s.NewToken()
	}
	return uuid.NewString()
}

func validateUpload(verr *models.ValidationError, name string, size int64, mimeType string) {
	if strings.TrimSpace(name) == "" {
		verr.Add("original_name", "is required")
	} else if len(name) > 255 {
		verr.Add("original_name", "must be at most 255 characters")
	}
	if size <= 0 {
		verr.Add("size_bytes", "must be greater than zero")
	} else if size > models.MaxAttachmentSizeBytes {
		verr.Add("size_bytes", "must be at most 10 MB")
	}
	extensions, ok := models.AllowedAttachmentTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	if !ok {
		verr.Add("mime_type", "file type is not allowed")
		return
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && !slices.Contains(extensions, ext) {
		verr.Add("original_name", "extension does not match the file type")
	}
}

func (s *AttachmentService) UploadURL(ctx context.Context, actor models.Actor, in models.AttachmentUploadRequest) (*models.AttachmentUploadResponse, error) {
	verr := models.NewValidationError()
	validateUpload(verr, in.FileName, in.FileSize, in.MimeType)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	mimeType := strings.ToLower(strings.TrimSpace(in.MimeType))
	key := in.GenerateS3Key(actor.UserID, s.token())
	url, err := s.Objects.GenerateUploadURL(ctx, key, mimeType, models.AttachmentURLExpiry)
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"operation": "UploadURL",
		"user_id":   actor.UserID,
		"s3_key":    key,
	}).Info("Issued attachment upload URL")

	return &models.AttachmentUploadResponse{
		UploadURL: url,
		Path:      key,
		ExpiresAt: nowFunc(s.Now).Add(models.AttachmentURLExpiry).Format(time.RFC3339),
		Headers:   models.UploadHint{ContentType: mimeType},
	}, nil
}

// ValidateAttachments checks each submitted attachment lives under the
// caller's prefix and exists in the bucket, and records the stored size.
func (s *AttachmentService) ValidateAttachments(ctx context.Context, userID int64, attachments []models.Attachment) (models.Attachments, error) {
	verr := models.NewValidationError()
	if len(attachments) > models.MaxAttachments {
		verr.Add("attachments", fmt.Sprintf("at most %d files", models.MaxAttachments))
		return nil, verr.Err()
	}

	prefix := models.AttachmentPrefix(userID)
	out := make(models.Attachments, 0, len(attachments))
	seen := map[string]bool{}
	for i, a := range attachments {
		field := fmt.Sprintf("attachments.%d", i)
		if !strings.HasPrefix(a.Path, prefix) || strings.Contains(a.Path, "..") {
			verr.Add(field, "was not uploaded by you")
			continue
		}
		if seen[a.Path] {
			verr.Add(field, "is listed twice")
			continue
		}
		seen[a.Path] = true

		size, exists, err := s.Objects.ObjectSize(ctx, a.Path)
		if err != nil {
			return nil, err
		}
		if !exists {
			verr.Add(field, "upload not found, please upload the file again")
			continue
		}
		if size > models.MaxAttachmentSizeBytes {
			verr.Add(field, "must be at most 10 MB")
			continue
		}
		if a.MimeType != "" {
			if _, ok := models.AllowedAttachmentTypes[strings.ToLower(a.MimeType)]; !ok {
				verr.Add(field, "file type is not allowed")
				continue
			}
		}

		name := strings.TrimSpace(a.OriginalName)
		if name == "" {
			name = filepath.Base(a.Path)
		}
		out = append(out, models.Attachment{Path: a.Path, OriginalName: name, SizeBytes: size, MimeType: strings.ToLower(a.MimeType)})
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadURL issues a presigned GET for one attachment of a request the
// caller can see.
func (s *AttachmentService) DownloadURL(ctx context.Context, actor models.Actor, requestID int64, index int) (*models.AttachmentDownloadResponse, error) {
	req, err := s.Requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req.UserID) {
		return nil, models.NotFound("request", requestID)
	}
	if index < 0 || index >= len(req.Attachments) {
		return nil, &models.NotFoundError{Entity: "attachment"}
	}
	a := req.Attachments[index]

	url, err := s.Objects.GenerateDownloadURL(ctx, a.Path, a.OriginalName, models.AttachmentURLExpiry)
	if err != nil {
		return nil, err
	}
	return &models.AttachmentDownloadResponse{
		DownloadURL: url,
		FileName:    a.OriginalName,
		FileSize:    a.SizeBytes,
		ExpiresAt:   nowFunc(s.Now).Add(models.AttachmentURLExpiry).Format(time.RFC3339),
	}, nil
}
