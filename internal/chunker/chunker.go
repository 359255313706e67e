// Package chunker splits requirement documents into typed chunks sized for
// embedding and retrieval.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultMaxChunkSize is the character threshold above which a paragraph is
// split into sentence-packed chunks.
const DefaultMaxChunkSize = 500

// Chunk types in priority order. Constraints and criteria are the most
// operationally important and must not be masked by broader categories.
const (
	TypeConstraint  = "constraint"
	TypeCriteria    = "criteria"
	TypeGoal        = "goal"
	TypeTechnical   = "technical"
	TypeDescription = "description"
	TypeList        = "list"
)

var typePriority = map[string]int{
	TypeConstraint:  0,
	TypeCriteria:    1,
	TypeGoal:        2,
	TypeTechnical:   3,
	TypeDescription: 4,
	TypeList:        5,
}

// TypePriority returns the retrieval tie-break rank for a chunk type.
// Lower means higher priority; unknown types sort last.
func TypePriority(chunkType string) int {
	if p, ok := typePriority[chunkType]; ok {
		return p
	}
	return len(typePriority)
}

// Piece is one chunk of a document: the section heading it came from, its
// content, and its classified type.
type Piece struct {
	Section string
	Content string
	Type    string
}

// Chunk splits a document into classified pieces. Sections are cut on
// heading lines, paragraphs on blank lines. Paragraphs over maxSize are
// packed greedily from whole sentences; a sentence is never split.
func Chunk(content string, maxSize int) []Piece {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}

	var pieces []Piece
	for _, sec := range splitSections(content) {
		for _, para := range splitParagraphs(sec.body) {
			for _, text := range packParagraph(para, maxSize) {
				pieces = append(pieces, Piece{
					Section: sec.heading,
					Content: text,
					Type:    Classify(text),
				})
			}
		}
	}
	return pieces
}

type section struct {
	heading string
	body    string
}

// splitSections cuts the document on heading marker lines. Content before
// the first heading lands in an "Introduction" section.
func splitSections(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	current := section{heading: "Introduction"}
	var body []string

	flush := func() {
		current.body = strings.Join(body, "\n")
		if strings.TrimSpace(current.body) != "" {
			sections = append(sections, current)
		}
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			current = section{heading: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))}
			continue
		}
		body = append(body, line)
	}
	flush()

	return sections
}

func splitParagraphs(body string) []string {
	var paras []string
	for _, p := range strings.Split(body, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// packParagraph returns the paragraph whole when it fits, otherwise
// accumulates sentences into chunks not exceeding maxSize.
func packParagraph(para string, maxSize int) []string {
	if len(para) <= maxSize {
		return []string{para}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range splitSentences(para) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

// splitSentences cuts text after terminal punctuation followed by
// whitespace. The sentence is the atomic unit of packing.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(string(runes[start : i+1]))
				if s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		s := strings.TrimSpace(string(runes[start:]))
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

var (
	criteriaGWT = regexp.MustCompile(`(?is)\bgiven\b.*\bwhen\b.*\bthen\b`)
	bulletLine  = regexp.MustCompile(`^\s*(?:[-*•]|\d+\.)\s+`)
)

var constraintMarkers = []string{"must not", "required", "shall"}
var goalMarkers = []string{"goal", "objective"}
var technicalMarkers = []string{"api", "schema", "endpoint", "component"}

// Classify assigns exactly one chunk type by first-match priority:
// criteria, constraint, goal, technical, list, description.
func Classify(text string) string {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "acceptance criteria") || criteriaGWT.MatchString(text) {
		return TypeCriteria
	}
	for _, m := range constraintMarkers {
		if strings.Contains(lower, m) {
			return TypeConstraint
		}
	}
	for _, m := range goalMarkers {
		if strings.Contains(lower, m) {
			return TypeGoal
		}
	}
	for _, m := range technicalMarkers {
		if containsWord(lower, m) {
			return TypeTechnical
		}
	}
	if bulletLine.MatchString(text) {
		return TypeList
	}
	return TypeDescription
}

// containsWord reports whether w appears in s on word boundaries, so "api"
// does not match inside "capita".
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(s[i-1])
		afterIdx := i + len(w)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(w)
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
