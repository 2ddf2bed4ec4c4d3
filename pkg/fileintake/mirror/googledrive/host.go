// Package googledrive implements fileintake.DocumentHost on the Google
// Drive v3 API. Files are mirrored into a configured folder; PDF and Word
// uploads can additionally be copied into native Google Docs for in-browser
// editing.
package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

const docMimeType = "application/vnd.google-apps.document"

// Config options for the Drive host.
type Config struct {
	// FolderID is the Drive folder mirrored files are created in. Empty
	// means the service account's root.
	FolderID string
	// CredentialsJSON is a service account key. Either this or TokenSource
	// must be set.
	CredentialsJSON []byte
	// TokenSource supplies OAuth2 tokens when CredentialsJSON is not used.
	TokenSource oauth2.TokenSource
}

// Host mirrors files to Google Drive.
type Host struct {
	svc      *drive.Service
	folderID string
}

var _ fileintake.DocumentHost = (*Host)(nil)

// New creates a Drive host.
func New(ctx context.Context, config Config) (*Host, error) {
	var opts []option.ClientOption
	switch {
	case len(config.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(config.CredentialsJSON))
	case config.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(config.TokenSource))
	default:
		return nil, errors.New("either credentials JSON or a token source is required")
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Host{svc: svc, folderID: config.FolderID}, nil
}

func (h *Host) Upload(ctx context.Context, name, mimeType string, reader io.Reader) (string, error) {
	meta := &drive.File{Name: name}
	if h.folderID != "" {
		meta.Parents = []string{h.folderID}
	}

	created, err := h.svc.Files.Create(meta).
		Media(reader, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", h.wrapError("upload", err)
	}
	return created.Id, nil
}

func (h *Host) ConvertToNative(ctx context.Context, externalID string) (string, error) {
	copied, err := h.svc.Files.Copy(externalID, &drive.File{MimeType: docMimeType}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", h.wrapError("convert", err)
	}
	return copied.Id, nil
}

func (h *Host) Share(ctx context.Context, externalID, email string) error {
	_, err := h.svc.Permissions.Create(externalID, &drive.Permission{
		Type:         "user",
		Role:         "writer",
		EmailAddress: email,
	}).
		SupportsAllDrives(true).
		SendNotificationEmail(false).
		Context(ctx).
		Do()
	if err != nil {
		return h.wrapError("share", err)
	}
	return nil
}

func (h *Host) Exists(ctx context.Context, externalID string) (bool, error) {
	file, err := h.svc.Files.Get(externalID).
		Fields("id", "trashed").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return false, nil
		}
		return false, h.wrapError("verify", err)
	}
	return !file.Trashed, nil
}

// wrapError classifies Drive API failures. Rate limits, auth hiccups and
// server errors are retryable; malformed requests are not.
func (h *Host) wrapError(op string, err error) error {
	retryable := true
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden:
			retryable = gerr.Code == http.StatusForbidden && isRateLimit(gerr)
		}
	}
	return &fileintake.MirrorError{
		Provider:  "googledrive",
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}

// isRateLimit distinguishes 403 quota errors, which clear on their own, from
// real permission denials.
func isRateLimit(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
