// Package extractor converts uploaded file bytes into plain text by MIME type.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"

	"github.com/kart-io/docqa/pkg/llm"
)

// ErrEmptyContent 提取结果为空或只有空白字符。
var ErrEmptyContent = errors.New("extracted content is empty")

// ImagePrompt 图片提取使用的固定指令。
const ImagePrompt = `Transcribe this image for a document search index.
1. Copy all visible text verbatim, preserving line order.
2. Reproduce any tables as Markdown tables with every row and column.
3. Finish with a short description of the visual content (charts, diagrams, photos).
Output only the extracted content.`

const mimePDF = "application/pdf"

// 作为纯文本直接解码的非 text/* 类型。
var textLike = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/x-yaml":     true,
	"application/yaml":       true,
	"application/javascript": true,
	"application/x-ndjson":   true,
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Normalize 去掉参数并转为小写，例如 "text/plain; charset=utf-8" -> "text/plain"。
func Normalize(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}

// IsImage reports whether mimeType is handled by the vision model.
func IsImage(mimeType string) bool {
	return imageTypes[Normalize(mimeType)]
}

// IsSupported reports whether files of mimeType can be ingested.
func IsSupported(mimeType string) bool {
	mt := Normalize(mimeType)
	return mt == mimePDF || imageTypes[mt] || textLike[mt] || strings.HasPrefix(mt, "text/")
}

// Extractor 按 MIME 类型提取文本。
type Extractor struct {
	vision llm.VisionProvider
}

// New 创建提取器，vision 为 nil 时图片提取返回错误。
func New(vision llm.VisionProvider) *Extractor {
	return &Extractor{vision: vision}
}

// Extract 返回去除首尾空白后的文本，结果为空时返回 ErrEmptyContent。
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mt := Normalize(mimeType)

	var (
		text string
		err  error
	)
	switch {
	case mt == mimePDF:
		text, err = extractPDF(data)
	case imageTypes[mt]:
		text, err = e.extractImage(ctx, data, mt)
	default:
		text = strings.ToValidUTF8(string(data), "�")
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func (e *Extractor) extractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	if e.vision == nil {
		return "", fmt.Errorf("no vision provider configured for %s", mimeType)
	}
	text, err := e.vision.DescribeImage(ctx, data, mimeType, ImagePrompt)
	if err != nil {
		return "", fmt.Errorf("failed to describe image: %w", err)
	}
	return text, nil
}

// extractPDF 按页序拼接所有页面文本，无法解析的页面会被跳过。
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warnw("skipping unreadable pdf page", "page", i, "error", err.Error())
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
