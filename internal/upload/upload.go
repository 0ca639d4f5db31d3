// Package upload sends emission documents to the backend and links them to the
// user's first micro company.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/audit"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/session"
)

var (
	ErrInProgress       = errors.New("upload: another upload is in progress")
	ErrNotAuthenticated = errors.New("upload: not authenticated")
	ErrPermission       = errors.New("upload: write permission required")
	ErrNoCompany        = errors.New("upload: user has no company")
	ErrEmptyFile        = errors.New("upload: file name and content are required")
)

// Backend is the subset of the REST client used for documents.
type Backend interface {
	UploadDocument(ctx context.Context, companyID int64, file api.FilePart, idempotencyKey string) (api.Document, error)
	MicroCompanies(ctx context.Context, companyID int64) ([]api.MicroCompany, error)
	LinkDocument(ctx context.Context, documentID, microCompanyID int64) error
	Documents(ctx context.Context) ([]api.Document, error)
	DocumentStatus(ctx context.Context, id int64) (api.Document, error)
}

// Snapshotter exposes the current session.
type Snapshotter interface {
	Snapshot() session.Snapshot
}

// Result describes a finished upload.
type Result struct {
	Document api.Document
	// LinkedTo is the micro company the document was linked to, or 0.
	LinkedTo int64
}

// Uploader allows one upload at a time.
type Uploader struct {
	backend  Backend
	sess     Snapshotter
	notifier notify.Notifier
	newKey   func() string

	uploading atomic.Bool
}

// Option configures Uploader.
type Option func(*Uploader)

// WithKeyFunc overrides the idempotency key generator.
func WithKeyFunc(fn func() string) Option {
	return func(u *Uploader) {
		if fn != nil {
			u.newKey = fn
		}
	}
}

// New builds an uploader. notifier may be nil.
func New(backend Backend, sess Snapshotter, notifier notify.Notifier, opts ...Option) *Uploader {
	u := &Uploader{backend: backend, sess: sess, notifier: notifier, newKey: uuid.NewString}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IsUploading reports whether an upload is in flight.
func (u *Uploader) IsUploading() bool { return u.uploading.Load() }

// Upload sends one file. A second call while one is running fails with
// ErrInProgress without touching the backend.
func (u *Uploader) Upload(ctx context.Context, name string, content io.Reader) (Result, error) {
	snap := u.sess.Snapshot()
	switch {
	case !snap.Authenticated || snap.Profile == nil:
		return Result{}, ErrNotAuthenticated
	case !access.CanAccess(snap.Permission, access.PermWrite):
		return Result{}, ErrPermission
	case snap.Profile.CompanyID == 0:
		notify.Error(ctx, u.notifier, "Usuário não possui empresa associada")
		return Result{}, ErrNoCompany
	case strings.TrimSpace(name) == "" || content == nil:
		return Result{}, ErrEmptyFile
	}
	if !u.uploading.CompareAndSwap(false, true) {
		return Result{}, ErrInProgress
	}
	defer u.uploading.Store(false)

	companyID := snap.Profile.CompanyID
	key := u.newKey()
	doc, err := u.backend.UploadDocument(ctx, companyID, api.FilePart{Name: filepath.Base(name), Content: content}, key)
	if err != nil {
		notify.Error(ctx, u.notifier, failureMessage(name, err))
		return Result{}, fmt.Errorf("upload: %s: %w", name, err)
	}
	res := Result{Document: doc}

	micro, err := u.backend.MicroCompanies(ctx, companyID)
	if err == nil && len(micro) > 0 {
		err = u.backend.LinkDocument(ctx, doc.ID, micro[0].ID)
		if err == nil {
			res.LinkedTo = micro[0].ID
		}
	}
	if err != nil {
		obs.Warn("document link failed", map[string]any{"document_id": doc.ID, "error": err})
		notify.Error(ctx, u.notifier, fmt.Sprintf("%s enviado, mas não foi vinculado à empresa", filepath.Base(name)))
		return res, fmt.Errorf("upload: link document %d: %w", doc.ID, err)
	}

	_ = audit.LogEvent(audit.WithActor(ctx, snap.Actor()), "document.uploaded", map[string]any{
		"document_id":     doc.ID,
		"file_name":       doc.FileName,
		"micro_company":   res.LinkedTo,
		"idempotency_key": key,
	})
	notify.Success(ctx, u.notifier, fmt.Sprintf("%s enviado com sucesso!", filepath.Base(name)))
	return res, nil
}

// Documents lists uploaded documents.
func (u *Uploader) Documents(ctx context.Context) ([]api.Document, error) {
	docs, err := u.backend.Documents(ctx)
	if err != nil {
		notify.Error(ctx, u.notifier, "Erro ao carregar histórico")
		return nil, fmt.Errorf("upload: history: %w", err)
	}
	return docs, nil
}

// Status returns the processing status of a document.
func (u *Uploader) Status(ctx context.Context, id int64) (api.Document, error) {
	doc, err := u.backend.DocumentStatus(ctx, id)
	if err != nil {
		return api.Document{}, fmt.Errorf("upload: status %d: %w", id, err)
	}
	return doc, nil
}

func failureMessage(name string, err error) string {
	switch api.StatusOf(err) {
	case http.StatusUnauthorized:
		return "Sessão expirada. Faça login novamente."
	case http.StatusForbidden:
		return "Sem permissão para enviar documentos."
	}
	return fmt.Sprintf("Erro ao enviar %s", filepath.Base(name))
}

// FileType classifies a file by extension the way the backend does.
func FileType(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return "PDF"
	case "xlsx", "xls":
		return "EXCEL"
	case "csv":
		return "CSV"
	case "png", "jpg", "jpeg", "gif":
		return "IMAGE"
	}
	return "OTHER"
}
