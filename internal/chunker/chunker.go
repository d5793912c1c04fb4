package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"chatpdf/internal/pkg/pdfextract"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	// DefaultMaxTextBytes bounds the metadata copy of a chunk stored next to its vector.
	DefaultMaxTextBytes = 36000
)

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MaxTextBytes int
}

// Chunk is a bounded slice of a page's text. ID is the hex MD5 of Content so
// re-ingesting identical text yields identical record ids.
type Chunk struct {
	ID         string
	PageNumber int
	Content    string
	Text       string
}

type Chunker struct {
	size     int
	overlap  int
	maxBytes int
}

func New(cfg Config) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	maxBytes := cfg.MaxTextBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTextBytes
	}
	return &Chunker{size: size, overlap: overlap, maxBytes: maxBytes}
}

// Chunk normalizes text and splits it into overlapping chunks of at most
// ChunkSize runes. Whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string, pageNumber int) []Chunk {
	return c.collect(nil, make(map[string]struct{}), text, pageNumber)
}

// ChunkPages chunks every page and drops chunks whose content already
// appeared earlier in the document.
func (c *Chunker) ChunkPages(pages []pdfextract.Page) []Chunk {
	var chunks []Chunk
	seen := make(map[string]struct{})
	for _, page := range pages {
		chunks = c.collect(chunks, seen, page.Text, page.Number)
	}
	return chunks
}

func (c *Chunker) collect(dst []Chunk, seen map[string]struct{}, text string, pageNumber int) []Chunk {
	normalized := Normalize(text)
	if normalized == "" {
		return dst
	}
	for _, piece := range c.split(normalized, 0) {
		if piece == "" {
			continue
		}
		chunk := c.newChunk(piece, pageNumber)
		if _, dup := seen[chunk.ID]; dup {
			continue
		}
		seen[chunk.ID] = struct{}{}
		dst = append(dst, chunk)
	}
	return dst
}

func (c *Chunker) newChunk(content string, pageNumber int) Chunk {
	sum := md5.Sum([]byte(content))
	return Chunk{
		ID:         hex.EncodeToString(sum[:]),
		PageNumber: pageNumber,
		Content:    content,
		Text:       TruncateBytes(content, c.maxBytes),
	}
}

// split applies the first separator present in text at or below level and
// recurses into pieces that are still too large.
func (c *Chunker) split(text string, level int) []string {
	for level < len(separators)-1 && !separators[level].present(text) {
		level++
	}
	sep := separators[level]

	var out, pending []string
	for _, piece := range sep.split(text) {
		if utf8.RuneCountInString(piece) <= c.size {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending, sep.join)...)
			pending = nil
		}
		if level+1 < len(separators) {
			out = append(out, c.split(piece, level+1)...)
		} else {
			out = append(out, piece)
		}
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending, sep.join)...)
	}
	return out
}

// merge greedily packs pieces into windows of at most c.size runes, carrying
// up to c.overlap runes of trailing pieces into the next window.
func (c *Chunker) merge(pieces []string, join string) []string {
	joinLen := utf8.RuneCountInString(join)
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if len(current) > 0 && total+joinLen+n > c.size {
			if chunk := strings.TrimSpace(strings.Join(current, join)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > c.overlap || total+joinLen+n > c.size) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= joinLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += joinLen
		}
		current = append(current, piece)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(current, join)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// TruncateBytes returns the longest prefix of s that fits in max bytes without
// cutting a multi-byte code point.
func TruncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
