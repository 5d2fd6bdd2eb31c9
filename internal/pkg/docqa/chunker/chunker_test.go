package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runes(s string) []rune { return []rune(s) }

func TestSplitShortText(t *testing.T) {
	c := New(DefaultSize, DefaultOverlap)
	assert.Nil(t, c.Split(""))
	assert.Equal(t, []string{"hello"}, c.Split("hello"))

	exact := strings.Repeat("a", DefaultSize)
	assert.Equal(t, []string{exact}, c.Split(exact))
}

func TestSplit1800Characters(t *testing.T) {
	text := strings.Repeat("abcdefghij", 180)
	require.Equal(t, 1800, utf8.RuneCountInString(text))

	c := New(DefaultSize, DefaultOverlap)
	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, text[:1000], chunks[0])
	assert.Equal(t, text[800:1000], chunks[1][:200])
	assert.Equal(t, text, c.Reconstruct(chunks))
}

func TestSplitPrefersNaturalBoundary(t *testing.T) {
	para := strings.Repeat("x", 700) + "\n\n" + strings.Repeat("y", 700)
	c := New(DefaultSize, DefaultOverlap)
	chunks := c.Split(para)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"))
	assert.Equal(t, para, c.Reconstruct(chunks))
}

func TestSplitInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []string{"a", "b", "文", "字", " ", ". ", "\n", "\n\n", "。", "?", "é"}

	c := New(DefaultSize, DefaultOverlap)
	for i := 0; i < 50; i++ {
		var sb strings.Builder
		n := rng.Intn(6000)
		for sb.Len() < n {
			sb.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		text := sb.String()
		chunks := c.Split(text)

		t.Run("覆盖", func(t *testing.T) {
			assert.Equal(t, text, c.Reconstruct(chunks))
		})

		t.Run("窗口大小", func(t *testing.T) {
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), DefaultSize)
			}
		})

		t.Run("重叠", func(t *testing.T) {
			if utf8.RuneCountInString(text) <= DefaultSize {
				assert.LessOrEqual(t, len(chunks), 1)
				return
			}
			for j := 1; j < len(chunks); j++ {
				prev, cur := runes(chunks[j-1]), runes(chunks[j])
				assert.Equal(t, string(prev[len(prev)-DefaultOverlap:]), string(cur[:DefaultOverlap]))
			}
		})
	}
}

func TestNewFallsBackToDefaults(t *testing.T) {
	c := New(0, -1)
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, DefaultOverlap, c.Overlap())

	c = New(100, 80)
	assert.Equal(t, 100, c.Size())
	assert.Equal(t, 25, c.Overlap())
}
