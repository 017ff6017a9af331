package knowledge

import (
	"strings"
	"unicode"
)

// DefaultChunkSize 默认段落长度（字符）
const DefaultChunkSize = 1000

// Chunk 表示分块后的文本结构，Order 从1开始
type Chunk struct {
	Order   int
	Content string
}

// Chunker 文本分块器：按句子贪心合并，无句末标点时按固定宽度切分
type Chunker struct {
	chunkSize int
}

// NewChunker 创建分块器
func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{chunkSize: chunkSize}
}

// ChunkSize 目标分块长度
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Split 将文本切分为多个chunk
func (c *Chunker) Split(text string) []Chunk {
	return ChunkText(text, c.chunkSize)
}

// ChunkText 按目标长度切分文本，空白输入返回空结果
func ChunkText(text string, targetSize int) []Chunk {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return sliceFixedWidth(strings.TrimSpace(text), targetSize)
	}

	var chunks []Chunk
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		content := strings.TrimSpace(buf.String())
		if content != "" {
			chunks = append(chunks, Chunk{Order: len(chunks) + 1, Content: content})
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sentence := range sentences {
		sentenceLen := runeLen(sentence)
		if bufLen > 0 && bufLen+1+sentenceLen > targetSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += sentenceLen
	}
	flush()

	return chunks
}

// splitSentences 以 . ! ? 切分句子，连续标点归入同一句
// 没有任何句末标点时返回 nil；末尾无标点的剩余文本作为最后一句
func splitSentences(text string) []string {
	if !strings.ContainsAny(text, ".!?") {
		return nil
	}

	runes := []rune(text)
	var sentences []string
	start := 0
	for i, r := range runes {
		if !isSentenceTerminal(r) {
			continue
		}
		if i+1 < len(runes) && isSentenceTerminal(runes[i+1]) {
			continue
		}
		if s := normalizeWhitespace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if start < len(runes) {
		if s := normalizeWhitespace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func sliceFixedWidth(text string, width int) []Chunk {
	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		content := string(runes[start:end])
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Order: len(chunks) + 1, Content: content})
	}
	return chunks
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func runeLen(s string) int {
	return len([]rune(s))
}

func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
