package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pms-api/preview"
)

const notFoundBody = "File not found"

// RemoteStore fetches documents from an upstream document service at
// {baseURL}/documents/{id}/download.
type RemoteStore struct {
	baseURL  string
	client   *http.Client
	maxBytes int64
}

// NewRemoteStore creates a store with a per-request timeout. A maxBytes of
// zero leaves the body size unbounded.
func NewRemoteStore(baseURL string, timeout time.Duration, maxBytes int64) *RemoteStore {
	return &RemoteStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch implements preview.DocumentStore. A 404, or a text/plain body
// saying the file was not found, is reported as not found.
func (s *RemoteStore) Fetch(ctx context.Context, documentID string) (*preview.Document, error) {
	endpoint := fmt.Sprintf("%s/documents/%s/download", s.baseURL, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &preview.FetchError{DocumentID: documentID, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &preview.FetchError{DocumentID: documentID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, preview.NewNotFoundError(documentID)
	}

	body := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &preview.FetchError{DocumentID: documentID, Err: fmt.Errorf("read body: %w", err)}
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, &preview.FetchError{DocumentID: documentID, Err: fmt.Errorf("document exceeds %d bytes", s.maxBytes)}
	}

	contentType := resp.Header.Get("Content-Type")
	if isNotFoundBody(contentType, data) {
		return nil, preview.NewNotFoundError(documentID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &preview.FetchError{
			DocumentID: documentID,
			Err:        errors.New("unexpected status " + resp.Status),
		}
	}

	return &preview.Document{
		ID:          documentID,
		FileName:    attachmentName(resp.Header.Get("Content-Disposition"), documentID),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func isNotFoundBody(contentType string, data []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "text/plain" {
		return false
	}
	return bytes.Contains(data, []byte(notFoundBody))
}

func attachmentName(disposition, fallback string) string {
	if disposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return fallback
	}
	return params["filename"]
}
