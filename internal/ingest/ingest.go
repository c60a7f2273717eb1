// Package ingest obtains plain text from source documents and segments it
// into paragraphs. Extraction runs through an ordered fallback chain of
// extractors; the result records which extractor succeeded so downstream
// consumers can audit the provenance of the text.
package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ErrExtraction indicates every extractor in the chain failed for a document.
var ErrExtraction = errors.New("text extraction failed")

// Document is one ingested source document.
type Document struct {
	Path       string    `json:"path"`
	Text       string    `json:"text"`
	Paragraphs []string  `json:"paragraphs"`
	Extractor  string    `json:"extractor"`
	SHA256     string    `json:"sha256"`
	IngestedAt time.Time `json:"ingested_at"`
}

// TextExtractor converts one document into plain text. An extractor returns
// an error for inputs it cannot handle, letting the chain fall through.
type TextExtractor interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// Chain tries extractors in order and reports which one produced the text.
type Chain struct {
	extractors []TextExtractor
	logger     *slog.Logger
}

// NewChain builds an extraction chain. With no arguments it uses the default
// chain: HTML conversion for .html/.htm files, then plain text.
func NewChain(logger *slog.Logger, extractors ...TextExtractor) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if len(extractors) == 0 {
		extractors = []TextExtractor{htmlExtractor{}, plainTextExtractor{}}
	}
	return &Chain{extractors: extractors, logger: logger}
}

// Extract returns the document text and the name of the extractor that
// produced it. Extractors yielding empty text are treated as failures.
func (c *Chain) Extract(ctx context.Context, path string) (string, string, error) {
	var lastErr error
	for _, ex := range c.extractors {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		text, err := ex.Extract(ctx, path)
		if err != nil {
			c.logger.Debug("extractor failed",
				slog.String("extractor", ex.Name()),
				slog.String("path", path),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) == "" {
			c.logger.Debug("extractor returned empty text",
				slog.String("extractor", ex.Name()), slog.String("path", path))
			lastErr = fmt.Errorf("extractor %s returned empty text", ex.Name())
			continue
		}
		return text, ex.Name(), nil
	}
	return "", "", fmt.Errorf("%w: %s: %v", ErrExtraction, path, lastErr)
}

// Load extracts, hashes, and paragraphizes one document.
func (c *Chain) Load(ctx context.Context, path string) (*Document, error) {
	text, extractor, err := c.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(text))
	doc := &Document{
		Path:       path,
		Text:       text,
		Paragraphs: Paragraphize(text, DefaultMinParagraph, DefaultMaxParagraph),
		Extractor:  extractor,
		SHA256:     fmt.Sprintf("%x", sum),
		IngestedAt: time.Now().UTC(),
	}
	c.logger.Info("ingested document",
		slog.String("path", path),
		slog.String("extractor", extractor),
		slog.Int("paragraphs", len(doc.Paragraphs)),
		slog.Int("chars", len(text)))
	return doc, nil
}

// plainTextExtractor reads the file as UTF-8 text.
type plainTextExtractor struct{}

func (plainTextExtractor) Name() string { return "plaintext" }

func (plainTextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// htmlExtractor converts HTML documents to markdown-flavored plain text.
// It only claims files with an .html or .htm extension.
type htmlExtractor struct{}

func (htmlExtractor) Name() string { return "html" }

func (htmlExtractor) Extract(_ context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
	default:
		return "", fmt.Errorf("%s is not an HTML document", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("converting %s: %w", path, err)
	}
	return text, nil
}
