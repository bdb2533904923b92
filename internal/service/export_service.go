package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/storage"
)

// ErrExportDisabled is returned when no export bucket is configured.
var ErrExportDisabled = errors.New("directory export is not configured")

// ExportResult describes a finished directory export.
type ExportResult struct {
	Location  string
	Domains   int
	Mailboxes int
}

// ExportService snapshots the mail directory to object storage.
type ExportService interface {
	Export(ctx context.Context) (*ExportResult, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
}

type exportService struct {
	directory DirectoryService
	store     storage.Service
	opts      storage.UploadOptions
	now       func() time.Time
}

// NewExportService returns an ExportService. A nil store or empty bucket
// yields a service whose calls fail with ErrExportDisabled.
func NewExportService(directory DirectoryService, store storage.Service, bucket, keyPrefix string) ExportService {
	return &exportService{
		directory: directory,
		store:     store,
		opts: storage.UploadOptions{
			Bucket:      bucket,
			KeyPrefix:   keyPrefix,
			ContentType: "application/json",
		},
		now: time.Now,
	}
}

type exportDocument struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Domains     []exportDomain  `json:"domains"`
	Mailboxes   []exportMailbox `json:"mailboxes"`
}

type exportDomain struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

type exportMailbox struct {
	ID       int64  `json:"id"`
	Address  string `json:"address"`
	DomainID int64  `json:"domain_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}

func (s *exportService) enabled() bool {
	return s.store != nil && s.opts.Bucket != ""
}

func (s *exportService) Export(ctx context.Context) (*ExportResult, error) {
	if !s.enabled() {
		return nil, ErrExportDisabled
	}

	domains, err := s.directory.ListDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect domains: %w", err)
	}
	mailboxes, err := s.directory.ListMailboxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect mailboxes: %w", err)
	}

	generated := s.now().UTC()
	doc := buildExportDocument(generated, domains, mailboxes)
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	name := fmt.Sprintf("directory-%s-%s.json", generated.Format("20060102T150405Z"), uuid.NewString())
	location, err := s.store.Upload(ctx, name, bytes.NewReader(payload), s.opts)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Location:  location,
		Domains:   len(domains),
		Mailboxes: len(mailboxes),
	}, nil
}

func (s *exportService) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if !s.enabled() {
		return nil, ErrExportDisabled
	}
	return s.store.ListObjects(ctx, s.opts.Bucket, storage.ObjectKey(s.opts.KeyPrefix, "directory-"))
}

func buildExportDocument(generated time.Time, domains []domain.Domain, mailboxes []domain.Mailbox) exportDocument {
	doc := exportDocument{
		GeneratedAt: generated,
		Domains:     make([]exportDomain, len(domains)),
		Mailboxes:   make([]exportMailbox, len(mailboxes)),
	}
	for i, d := range domains {
		doc.Domains[i] = exportDomain{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Active:      d.Active,
		}
	}
	for i, m := range mailboxes {
		doc.Mailboxes[i] = exportMailbox{
			ID:       m.ID,
			Address:  m.Address(),
			DomainID: m.DomainID,
			Name:     m.Name,
			Active:   m.Active,
		}
	}
	return doc
}
