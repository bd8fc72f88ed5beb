package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xhad/xiaowei/internal/models"
)

// DefaultChunkSize is the soft upper bound, in characters, of a chunk.
const DefaultChunkSize = 500

type ProcessorConfig struct {
	ChunkSize int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	return Processor{
		config: config,
	}
}

// ChunkSize reports the configured target size.
func (p *Processor) ChunkSize() int {
	return p.config.ChunkSize
}

func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	processed := make([]models.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Chunks:   Chunk(doc.Content, p.config.ChunkSize),
		})
	}

	return processed, nil
}

// Chunk greedily packs whole sentences into chunks of at most targetSize
// characters. A sentence is never split, so a single sentence longer than
// targetSize becomes one oversized chunk.
func Chunk(text string, targetSize int) []string {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}

	var chunks []string
	currentChunk := strings.Builder{}
	currentLen := 0

	flush := func() {
		if s := strings.TrimSpace(currentChunk.String()); s != "" {
			chunks = append(chunks, s)
		}
		currentChunk.Reset()
		currentLen = 0
	}

	for _, sentence := range SplitSentences(text) {
		n := utf8.RuneCountInString(sentence)

		// If adding this sentence would exceed chunk size
		if currentLen+n > targetSize && currentLen > 0 {
			flush()
		}

		currentChunk.WriteString(sentence)
		currentLen += n
	}

	flush()

	return chunks
}

// SplitSentences cuts text after every sentence terminator, keeping the
// terminator and any whitespace that follows it with the sentence. Text after
// the last terminator is returned as a final sentence.
func SplitSentences(text string) []string {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminator(r) {
			continue
		}
		for i < len(text) {
			next, nextSize := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(next) {
				break
			}
			i += nextSize
		}
		sentences = append(sentences, text[start:i])
		start = i
	}

	// Add any remaining text
	if start < len(text) && strings.TrimSpace(text[start:]) != "" {
		sentences = append(sentences, text[start:])
	}

	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '.', '!', '?':
		return true
	}
	return false
}
