package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pms-api/preview"
	"pms-api/utils"

	"github.com/google/uuid"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is the metadata of an uploaded patient document. The file itself
// lives under the base path at FilePath.
type Document struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patientId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	FilePath    string    `json:"-"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
}

// DocumentStore keeps document metadata in sqlite and files on disk.
type DocumentStore struct {
	db       *sql.DB
	basePath string
}

func NewDocumentStore(db *sql.DB, basePath string) *DocumentStore {
	return &DocumentStore{db: db, basePath: basePath}
}

// Create saves data and registers doc. ID, FilePath, Size and Created are
// filled in; the file is removed again if the insert fails.
func (s *DocumentStore) Create(ctx context.Context, doc *Document, data []byte) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Size = int64(len(data))
	doc.Created = time.Now().UTC()
	doc.FilePath = filepath.Join(filesDir, safeSegment(doc.PatientID), doc.ID+strings.ToLower(filepath.Ext(doc.FileName)))

	fullPath := s.Path(doc)
	if err := utils.SaveFileAtomic(fullPath, data); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO Documents (ID, PatientID, FileName, ContentType, FilePath, Hash, Size, Created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.PatientID, doc.FileName, doc.ContentType, doc.FilePath, doc.Hash, doc.Size,
		doc.Created.Format(time.RFC3339Nano))
	if err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get returns the metadata of one document.
func (s *DocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ID, PatientID, FileName, ContentType, FilePath, Hash, Size, Created
		FROM Documents WHERE ID = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByPatient returns a patient's documents, newest first.
func (s *DocumentStore) ListByPatient(ctx context.Context, patientID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ID, PatientID, FileName, ContentType, FilePath, Hash, Size, Created
		FROM Documents WHERE PatientID = ? ORDER BY Created DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	documents := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

// Path returns where the file of doc is stored.
func (s *DocumentStore) Path(doc *Document) string {
	return filepath.Join(s.basePath, doc.FilePath)
}

// Fetch implements preview.DocumentStore. A row whose file has gone missing
// from disk is reported as not found.
func (s *DocumentStore) Fetch(ctx context.Context, documentID string) (*preview.Document, error) {
	doc, err := s.Get(ctx, documentID)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, preview.NewNotFoundError(documentID)
	}
	if err != nil {
		return nil, &preview.FetchError{DocumentID: documentID, Err: err}
	}

	data, err := os.ReadFile(s.Path(doc))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, preview.NewNotFoundError(documentID)
	}
	if err != nil {
		return nil, &preview.FetchError{DocumentID: documentID, Err: err}
	}

	return &preview.Document{
		ID:          doc.ID,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		Data:        data,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var contentType, hash, created sql.NullString
	var size sql.NullInt64
	if err := row.Scan(&doc.ID, &doc.PatientID, &doc.FileName, &contentType,
		&doc.FilePath, &hash, &size, &created); err != nil {
		return nil, err
	}
	doc.ContentType = contentType.String
	doc.Hash = hash.String
	doc.Size = size.Int64
	if created.Valid {
		doc.Created, _ = time.Parse(time.RFC3339Nano, created.String)
	}
	return &doc, nil
}

func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
