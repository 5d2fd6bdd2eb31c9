// Package chunker splits extracted document text into overlapping windows.
//
// Sizes are counted in Unicode characters. Every chunk after the first
// starts with the last Overlap characters of its predecessor, so dropping
// that prefix from each chunk and concatenating reconstructs the input.
package chunker

import "strings"

// 默认窗口与重叠大小。
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// 候选切分点，按优先级排列。
var boundaries = []string{"\n\n", "。", ". ", "! ", "? ", "\n"}

// Chunker 固定窗口切分器。
type Chunker struct {
	size    int
	overlap int
}

// New 创建切分器，非法参数回退到默认值。
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap*2 >= size {
		overlap = min(DefaultOverlap, size/4)
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size 返回窗口大小。
func (c *Chunker) Size() int { return c.size }

// Overlap 返回重叠大小。
func (c *Chunker) Overlap() int { return c.overlap }

// Split 将文本切分为有序的分块。空文本返回 nil。
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + c.size
		if end >= n {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		end = c.boundary(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))
		start = end - c.overlap
	}
	return chunks
}

// boundary 在窗口后半段寻找最靠后的自然切分点，找不到时返回 end。
// 切分点落在后半段，保证每一步至少前进 size/2-overlap 个字符。
func (c *Chunker) boundary(runes []rune, start, end int) int {
	minEnd := start + c.size/2
	window := string(runes[minEnd:end])
	for _, sep := range boundaries {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := minEnd + len([]rune(window[:idx+len(sep)]))
		if cut > minEnd && cut <= end {
			return cut
		}
	}
	return end
}

// Reconstruct 去掉每个分块的重叠前缀后拼接，返回原文。
func (c *Chunker) Reconstruct(chunks []string) string {
	var sb strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			sb.WriteString(ch)
			continue
		}
		sb.WriteString(string([]rune(ch)[c.overlap:]))
	}
	return sb.String()
}
