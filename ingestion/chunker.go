package ingestion

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"

	"github.com/fabfab/estate-agent/config"
)

// Chunker splits extracted brochure text into overlapping segments.
type Chunker struct {
	Strategy string
	Size     int
	Overlap  int
	// MaxChars bounds a single chunk; longer chunks are wrapped at whitespace.
	MaxChars int
}

func NewChunker(cfg config.ChunkingConfig) (Chunker, error) {
	if err := config.ValidateChunking(cfg.Size, cfg.Overlap); err != nil {
		return Chunker{}, err
	}
	return Chunker{
		Strategy: cfg.Strategy,
		Size:     cfg.Size,
		Overlap:  cfg.Overlap,
		MaxChars: cfg.MaxChunkChars,
	}, nil
}

func (c Chunker) Chunk(text string) ([]string, error) {
	var (
		chunks []string
		err    error
	)
	switch c.Strategy {
	case config.ChunkBySentences:
		chunks, err = ChunkSentences(text, c.Size, c.Overlap)
	case config.ChunkByWords, "":
		chunks, err = ChunkWords(text, c.Size, c.Overlap)
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", c.Strategy)
	}
	if err != nil {
		return nil, err
	}
	if c.MaxChars <= 0 {
		return chunks, nil
	}

	bounded := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		bounded = append(bounded, wrapChunk(chunk, c.MaxChars)...)
	}
	return bounded, nil
}

// ChunkWords emits windows of size words advancing by size-overlap words.
// The final window always ends on the last word.
func ChunkWords(text string, size, overlap int) ([]string, error) {
	if err := config.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// ChunkSentences packs whole sentences up to size words. The next chunk is
// seeded with the trailing sentences of the previous one that fit in overlap
// words. A sentence longer than size becomes a chunk of its own.
func ChunkSentences(text string, size, overlap int) ([]string, error) {
	if err := config.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}

	sentences, err := SplitSentences(text)
	if err != nil {
		return nil, err
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	var (
		chunks  []string
		current []string
		words   int
		fresh   int
	)
	flush := func() {
		chunks = append(chunks, strings.Join(current, " "))
		seed, seedWords := tailSentences(current, overlap)
		current = seed
		words = seedWords
		fresh = 0
	}

	for _, sentence := range sentences {
		n := len(strings.Fields(sentence))
		if fresh > 0 && words+n > size {
			flush()
		}
		current = append(current, sentence)
		words += n
		fresh++
	}
	if fresh > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks, nil
}

// SplitSentences segments text into trimmed, non-empty sentences.
func SplitSentences(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(
		strings.Join(strings.Fields(text), " "),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("segment sentences: %w", err)
	}

	sentences := make([]string, 0)
	for _, sentence := range doc.Sentences() {
		if trimmed := strings.TrimSpace(sentence.Text); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences, nil
}

func tailSentences(sentences []string, budget int) ([]string, int) {
	if budget <= 0 {
		return nil, 0
	}
	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := len(strings.Fields(sentences[i]))
		if total+n > budget {
			break
		}
		total += n
		start = i
	}
	seed := make([]string, len(sentences)-start)
	copy(seed, sentences[start:])
	return seed, total
}

func wrapChunk(chunk string, maxChars int) []string {
	if utf8.RuneCountInString(chunk) <= maxChars {
		return []string{chunk}
	}

	var (
		parts   []string
		builder strings.Builder
		length  int
	)
	for _, word := range strings.Fields(chunk) {
		wordLen := utf8.RuneCountInString(word)
		if length > 0 && length+1+wordLen > maxChars {
			parts = append(parts, builder.String())
			builder.Reset()
			length = 0
		}
		for wordLen > maxChars {
			runes := []rune(word)
			parts = append(parts, string(runes[:maxChars]))
			word = string(runes[maxChars:])
			wordLen = len(runes) - maxChars
		}
		if length > 0 {
			builder.WriteByte(' ')
			length++
		}
		builder.WriteString(word)
		length += wordLen
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
