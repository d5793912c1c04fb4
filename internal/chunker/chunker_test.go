package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpdf/internal/pkg/pdfextract"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \n\t\r\n  \n", ""},
		{"line wraps become spaces", "the quick\nbrown   fox", "the quick brown fox"},
		{"blank lines keep paragraphs", "first para\n\n\n  second\r\npara", "first para\n\nsecond para"},
		{"crlf blank line", "a\r\n\r\nb", "a\n\nb"},
		{"tabs collapse", "a\t\tb", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(Config{})
	assert.Empty(t, c.Chunk("", 1))
	assert.Empty(t, c.Chunk("   \n\n\t  ", 1))
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	c := New(Config{ChunkSize: 100, ChunkOverlap: 10})
	chunks := c.Chunk("Invoice total:\n$450", 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Invoice total: $450", chunks[0].Content)
	assert.Equal(t, chunks[0].Content, chunks[0].Text)
	assert.Equal(t, 2, chunks[0].PageNumber)
	assert.Len(t, chunks[0].ID, 32)
}

func TestChunk_RespectsSizeAndPrefersParagraphs(t *testing.T) {
	para1 := strings.Repeat("alpha ", 10) + "end."
	para2 := strings.Repeat("beta ", 10) + "end."
	c := New(Config{ChunkSize: 80, ChunkOverlap: 0})

	chunks := c.Chunk(para1+"\n\n"+para2, 1)
	require.Len(t, chunks, 2)
	assert.Equal(t, Normalize(para1), chunks[0].Content)
	assert.Equal(t, Normalize(para2), chunks[1].Content)
}

func TestChunk_FallsBackToSentences(t *testing.T) {
	text := "One short sentence here. Another short sentence here. A third one follows it."
	c := New(Config{ChunkSize: 30, ChunkOverlap: 0})

	chunks := c.Chunk(text, 1)
	require.Len(t, chunks, 3)
	assert.Equal(t, "One short sentence here.", chunks[0].Content)
	assert.Equal(t, "Another short sentence here.", chunks[1].Content)
	assert.Equal(t, "A third one follows it.", chunks[2].Content)
}

func TestChunk_OverlapCarriesTrailingWords(t *testing.T) {
	text := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10"
	c := New(Config{ChunkSize: 11, ChunkOverlap: 5})

	chunks := c.Chunk(text, 1)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Content)
		cur := strings.Fields(chunks[i].Content)
		assert.Contains(t, cur, prev[len(prev)-1], "chunk %d should repeat the tail of chunk %d", i, i-1)
		assert.LessOrEqual(t, len(chunks[i].Content), 11)
	}
}

func TestChunk_LongWordSplitsOnRunes(t *testing.T) {
	c := New(Config{ChunkSize: 4, ChunkOverlap: 0})
	chunks := c.Chunk("ééééééééé", 1)
	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 4)
		assert.True(t, utf8.ValidString(ch.Content))
	}
}

func TestChunk_NonEmptyTextAlwaysYieldsBoundedChunks(t *testing.T) {
	inputs := []string{
		"x",
		strings.Repeat("日本語のテキスト。", 200),
		strings.Repeat("Sentence number one! Is this two? Yes.\n", 80),
		strings.Repeat("€", 5000),
	}
	c := New(Config{ChunkSize: 120, ChunkOverlap: 20, MaxTextBytes: 50})
	for _, in := range inputs {
		chunks := c.Chunk(in, 1)
		require.NotEmpty(t, chunks)
		for _, ch := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 120)
			assert.LessOrEqual(t, len(ch.Text), 50)
			assert.True(t, utf8.ValidString(ch.Text), "metadata text must not split a code point")
			assert.True(t, strings.HasPrefix(ch.Content, ch.Text))
		}
	}
}

func TestChunk_IdenticalTextYieldsIdenticalIDs(t *testing.T) {
	text := strings.Repeat("Repeatable content for hashing. ", 100)
	c := New(Config{ChunkSize: 200, ChunkOverlap: 40})

	first := c.Chunk(text, 1)
	second := c.Chunk(text, 1)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestChunkPages_DropsDuplicateContent(t *testing.T) {
	c := New(Config{ChunkSize: 200})
	chunks := c.ChunkPages([]pdfextract.Page{
		{Number: 1, Text: "Company header"},
		{Number: 2, Text: "Invoice total: $450"},
		{Number: 3, Text: "Company header"},
	})
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[1].PageNumber)
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "", TruncateBytes("abc", 0))
	assert.Equal(t, "abc", TruncateBytes("abc", 10))
	assert.Equal(t, "ab", TruncateBytes("abc", 2))
	// "é" is two bytes; cutting at 3 must not keep half of the second one.
	assert.Equal(t, "aé", TruncateBytes("aéé", 4))
	assert.Equal(t, "aé", TruncateBytes("aéé", 3))
	assert.Equal(t, "", TruncateBytes("€", 2))
}
