// Package extract turns remote PDF documents into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// ErrFetch indicates the document could not be downloaded.
var ErrFetch = errors.New("extract: fetch failed")

// ErrParse indicates the downloaded bytes were not a readable PDF.
var ErrParse = errors.New("extract: unreadable pdf")

// Extractor downloads a PDF by URL and extracts its text. One attempt,
// no retries; the caller decides whether to surface or abort.
type Extractor struct {
	client   *http.Client
	maxBytes int64
}

// NewExtractor constructs Extractor. The fetch timeout bounds the whole
// download, maxBytes caps the response body.
func NewExtractor(timeout time.Duration, maxBytes int64) *Extractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Extractor{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Text fetches the PDF at url and returns its plain text.
func (e *Extractor) Text(ctx context.Context, url string) (string, error) {
	data, err := e.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return extractText(data)
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrFetch, e.maxBytes)
	}
	return data, nil
}

func extractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrParse, pageNum, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrParse)
	}
	return out, nil
}
