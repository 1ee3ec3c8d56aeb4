package text

import (
	"iter"
	"maps"
	"strconv"
	"strings"
)

// RecordSeparator delimits records inside a scraped document.
const RecordSeparator = "\n\n"

// MetadataStartIndex is set on pieces produced by splitting an oversized record.
const MetadataStartIndex = "start_index"

// Document is a raw text blob plus the metadata describing where it came from.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Chunk is one record cut out of a Document. Metadata is owned by the chunk.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

type ChunkerOptions struct {
	// MaxRecordSize is the rune length above which a record is split again
	// with the recursive splitter. Zero keeps every record whole.
	MaxRecordSize int
	Splitter      *RecursiveSplitter
}

type Chunker struct {
	maxRecordSize int
	splitter      *RecursiveSplitter
}

func NewChunker(opts ChunkerOptions) *Chunker {
	splitter := opts.Splitter
	if splitter == nil {
		splitter = NewRecursiveSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	return &Chunker{maxRecordSize: opts.MaxRecordSize, splitter: splitter}
}

// Chunks yields one Chunk per non-blank record in doc. The sequence is lazy
// and can be ranged over more than once.
func (c *Chunker) Chunks(doc Document) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		rest := doc.Content
		for len(rest) > 0 {
			record := rest
			if idx := strings.Index(rest, RecordSeparator); idx >= 0 {
				record = rest[:idx]
				rest = rest[idx+len(RecordSeparator):]
			} else {
				rest = ""
			}

			if strings.TrimSpace(record) == "" {
				continue
			}

			if c.maxRecordSize > 0 && runeLen(record) > c.maxRecordSize {
				if !c.yieldPieces(record, doc.Metadata, yield) {
					return
				}
				continue
			}

			if !yield(Chunk{Text: record, Metadata: maps.Clone(orEmpty(doc.Metadata))}) {
				return
			}
		}
	}
}

// Collect drains the chunk sequence of doc into a slice.
func (c *Chunker) Collect(doc Document) []Chunk {
	var chunks []Chunk
	for chunk := range c.Chunks(doc) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (c *Chunker) yieldPieces(record string, meta map[string]string, yield func(Chunk) bool) bool {
	searchFrom := 0
	for _, piece := range c.splitter.Split(record) {
		start := -1
		if idx := strings.Index(record[searchFrom:], piece); idx >= 0 {
			start = searchFrom + idx
			searchFrom = start + 1
		}

		pieceMeta := maps.Clone(orEmpty(meta))
		pieceMeta[MetadataStartIndex] = strconv.Itoa(start)
		if !yield(Chunk{Text: piece, Metadata: pieceMeta}) {
			return false
		}
	}
	return true
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
