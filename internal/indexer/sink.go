package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// HTTPSink posts documents to an external indexing service:
// POST {base}/notes with a Document body, DELETE {base}/notes/{id}.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSink(baseURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSink) Index(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notes", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, false)
}

func (s *HTTPSink) Remove(ctx context.Context, noteID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/notes/"+url.PathEscape(noteID), nil)
	if err != nil {
		return err
	}
	return s.do(req, true)
}

// do sends req. A 404 counts as success for removals of notes the index never saw.
func (s *HTTPSink) do(req *http.Request, missingOK bool) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && missingOK {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("indexer returned %s", resp.Status)
	}
	return nil
}

// LogSink stands in when no indexing service is configured.
type LogSink struct{}

func (LogSink) Index(ctx context.Context, doc *Document) error {
	log.Printf("[Indexer] note %s v%d: %d chunks", doc.NoteID, doc.Version, len(doc.Chunks))
	return nil
}

func (LogSink) Remove(ctx context.Context, noteID string) error {
	log.Printf("[Indexer] note %s removed", noteID)
	return nil
}
