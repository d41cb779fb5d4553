// Package chunker splits extracted document text into chunks ready for embedding.
package chunker

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// Strategy names accepted by New.
const (
	StrategyParagraph = "paragraph"
	StrategyFixed     = "fixed"
)

// DefaultMaxChars is the fixed-width window used when none is configured.
const DefaultMaxChars = 500

// Chunker produces a lazy sequence of chunks. Ranging over the sequence twice
// splits the text twice; nothing is cached between iterations.
type Chunker interface {
	Chunks(text string) iter.Seq[domain.Chunk]
}

// Config selects and tunes a splitting strategy.
type Config struct {
	Strategy string
	MaxChars int
	Overlap  int
}

// New returns the Chunker named by cfg.Strategy.
func New(cfg Config) (Chunker, error) {
	switch cfg.Strategy {
	case "", StrategyParagraph:
		return Paragraph{}, nil
	case StrategyFixed:
		maxChars := cfg.MaxChars
		if maxChars <= 0 {
			maxChars = DefaultMaxChars
		}
		if cfg.Overlap < 0 || cfg.Overlap >= maxChars {
			return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", cfg.Overlap, maxChars)
		}
		return FixedWidth{MaxChars: maxChars, Overlap: cfg.Overlap}, nil
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", cfg.Strategy)
	}
}

// Collect drains a chunk sequence into a slice.
func Collect(seq iter.Seq[domain.Chunk]) []domain.Chunk {
	var chunks []domain.Chunk
	for c := range seq {
		chunks = append(chunks, c)
	}
	return chunks
}

var blankLine = regexp.MustCompile(`\n\s*\n`)

// Paragraph splits on blank lines.
type Paragraph struct{}

func (Paragraph) Chunks(text string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		index := 0
		for _, part := range blankLine.Split(text, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !yield(domain.Chunk{Index: index, Text: part}) {
				return
			}
			index++
		}
	}
}

// FixedWidth cuts the text into windows of at most MaxChars runes. A window
// ends at the last whitespace in its second half when there is one, so words
// are not split unless a single token is longer than half a window.
type FixedWidth struct {
	MaxChars int
	Overlap  int
}

func (f FixedWidth) Chunks(text string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(strings.TrimSpace(text))
		maxChars := f.MaxChars
		if maxChars <= 0 {
			maxChars = DefaultMaxChars
		}

		index := 0
		start := 0
		for start < len(runes) {
			end := min(start+maxChars, len(runes))
			if end < len(runes) {
				minCut := start + maxChars/2
				for i := end; i > minCut; i-- {
					if unicode.IsSpace(runes[i-1]) {
						end = i
						break
					}
				}
			}

			if part := strings.TrimSpace(string(runes[start:end])); part != "" {
				if !yield(domain.Chunk{Index: index, Text: part}) {
					return
				}
				index++
			}

			if end >= len(runes) {
				return
			}
			next := end - f.Overlap
			if next <= start {
				next = end
			}
			start = next
		}
	}
}
