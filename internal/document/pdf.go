package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const MessageNoExtractableText = "Unable to extract text from this PDF. The PDF may contain images or use encoding that requires advanced parsing."

var (
	streamPattern     = regexp.MustCompile(`(?s)stream\s*(.*?)\s*endstream`)
	textOpPattern     = regexp.MustCompile(`\((.*?)\)\s*Tj|\[(.*?)\]\s*TJ`)
	parenPattern      = regexp.MustCompile(`\((.*?)\)`)
	controlOnly       = regexp.MustCompile(`^[\x00-\x1F]+$`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

type PDFExtractorConfig struct {
	MaxPages    int
	Concurrency int
	Logger      *zerolog.Logger
}

// PDFExtractor reads the text layer of a PDF. Pages are parsed
// concurrently and joined in page order.
type PDFExtractor struct {
	maxPages    int
	concurrency int
	logger      *zerolog.Logger
}

func NewPDFExtractor(config PDFExtractorConfig) *PDFExtractor {
	if config.MaxPages <= 0 {
		config.MaxPages = 500
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Logger == nil {
		nop := zerolog.Nop()
		config.Logger = &nop
	}
	return &PDFExtractor{
		maxPages:    config.MaxPages,
		concurrency: config.Concurrency,
		logger:      config.Logger,
	}
}

// ExtractBase64 decodes a base64 document (a data URL prefix is accepted)
// and extracts its text.
func (e *PDFExtractor) ExtractBase64(ctx context.Context, encoded string) (string, error) {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return "", err
	}
	return e.Extract(ctx, data)
}

// Extract never fails on unreadable content: when no text is found the
// fixed explanatory message is returned instead.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	text, err := e.extractPages(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		e.logger.Debug().Err(err).Msg("pdf reader failed, using stream scan")
	}
	if text == "" {
		text = ScanTextOperators(data)
	}
	if text == "" {
		return MessageNoExtractableText, nil
	}
	return text, nil
}

func (e *PDFExtractor) extractPages(ctx context.Context, data []byte) (text string, err error) {
	// The reader panics on some malformed cross reference tables.
	defer func() {
		if recovered := recover(); recovered != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages > e.maxPages {
		e.logger.Warn().Int("pages", numPages).Int("max_pages", e.maxPages).Msg("pdf truncated to page limit")
		numPages = e.maxPages
	}
	pages, err := e.collectPages(ctx, numPages, func(pageNum int) (string, error) {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
	if err != nil {
		return "", err
	}

	return cleanText(strings.Join(pages, "\n")), nil
}

// collectPages reads pages concurrently, keeping page order. A page that
// fails or panics is logged and left empty so the others still count.
func (e *PDFExtractor) collectPages(ctx context.Context, numPages int, readPage func(pageNum int) (string, error)) ([]string, error) {
	pages := make([]string, numPages)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for index := 0; index < numPages; index++ {
		pageNum := index + 1
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			content, err := readPageSafely(readPage, pageNum)
			if err != nil {
				e.logger.Warn().Err(err).Int("page", pageNum).Msg("skipping unreadable pdf page")
				return nil
			}
			pages[pageNum-1] = content
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func readPageSafely(readPage func(int) (string, error), pageNum int) (content string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			content, err = "", fmt.Errorf("page %d: panic: %v", pageNum, recovered)
		}
	}()
	content, err = readPage(pageNum)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", pageNum, err)
	}
	return content, nil
}

// ScanTextOperators is the fallback extractor: it collects the string
// operands of Tj and TJ operators found in uncompressed content streams.
func ScanTextOperators(data []byte) string {
	content := latin1(data)

	parts := make([]string, 0)
	for _, stream := range streamPattern.FindAllStringSubmatch(content, -1) {
		for _, operation := range textOpPattern.FindAllString(stream[1], -1) {
			for _, operand := range parenPattern.FindAllString(operation, -1) {
				text := operand[1 : len(operand)-1]
				if text != "" && !controlOnly.MatchString(text) {
					parts = append(parts, text)
				}
			}
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\r`, "")
	return cleanText(text)
}

func DecodeBase64(encoded string) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, domain.InvalidInput("PDF base64 data is required")
	}
	if strings.HasPrefix(trimmed, "data:") {
		if comma := strings.IndexByte(trimmed, ','); comma >= 0 {
			trimmed = trimmed[comma+1:]
		}
	}
	trimmed = strings.Join(strings.Fields(trimmed), "")

	data, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(trimmed, "="))
	}
	if err != nil {
		return nil, domain.InvalidInput("PDF data is not valid base64")
	}
	return data, nil
}

func cleanText(value string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}

func latin1(data []byte) string {
	runes := make([]rune, len(data))
	for index, b := range data {
		runes[index] = rune(b)
	}
	return string(runes)
}
