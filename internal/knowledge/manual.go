// Package knowledge indexes a Markdown support manual and returns the
// passages most similar to a question, so they can be appended to the
// assistant's system instruction.
//
// The index is immutable after construction and safe for concurrent use.
// Similarity is the Jaccard coefficient between the accent-folded word sets
// of the question and each passage.
package knowledge

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Excerpt is a passage of the manual with its similarity to the question.
type Excerpt struct {
	Section string
	Text    string
	Score   float64
}

// Source is what the message service needs from a manual.
type Source interface {
	Excerpts(question string, k int) []Excerpt
}

// Option tunes manual construction.
type Option func(*settings)

type settings struct {
	minRunes  int
	stopwords map[string]struct{}
}

// WithMinRunes drops passages shorter than n runes.
func WithMinRunes(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minRunes = n
		}
	}
}

// WithStopwords replaces the built-in stop-word list.
func WithStopwords(words ...string) Option {
	return func(s *settings) {
		s.stopwords = wordSet(words)
	}
}

type passage struct {
	section string
	text    string
	words   map[string]struct{}
}

// Manual is a loaded support manual.
type Manual struct {
	cfg      settings
	passages []passage
}

// Load reads and indexes the Markdown file at path.
func Load(path string, opts ...Option) (*Manual, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(b), opts...)
}

// Parse indexes Markdown read from r. Passages are split on blank lines;
// each passage remembers the closest preceding heading, and table rows
// become one passage per row.
func Parse(r io.Reader, opts ...Option) (*Manual, error) {
	cfg := settings{minRunes: 30, stopwords: wordSet(portugueseStopwords)}
	for _, o := range opts {
		o(&cfg)
	}
	m := &Manual{cfg: cfg}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		section string
		para    []string
	)
	flush := func() {
		if len(para) > 0 {
			m.add(section, strings.Join(para, " "))
			para = para[:0]
		}
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
			flush()
			section = strings.TrimSpace(strings.TrimLeft(line, "#"))
		case strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|"):
			flush()
			if row := tableRow(line); row != "" {
				m.add(section, row)
			}
		default:
			para = append(para, line)
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manual) add(section, text string) {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) < m.cfg.minRunes {
		return
	}
	words := m.tokenize(section + " " + text)
	if len(words) == 0 {
		return
	}
	m.passages = append(m.passages, passage{section: section, text: text, words: words})
}

// Len returns the number of indexed passages.
func (m *Manual) Len() int { return len(m.passages) }

// Excerpts returns up to k passages sharing words with question, best first.
// Ties go to the shorter passage, then lexical order.
func (m *Manual) Excerpts(question string, k int) []Excerpt {
	if m == nil || len(m.passages) == 0 || k <= 0 {
		return nil
	}
	q := m.tokenize(question)
	if len(q) == 0 {
		return nil
	}

	var hits []Excerpt
	for _, p := range m.passages {
		shared := 0
		for w := range q {
			if _, ok := p.words[w]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		score := float64(shared) / float64(len(q)+len(p.words)-shared)
		hits = append(hits, Excerpt{Section: p.section, Text: p.text, Score: score})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		if len(hits[a].Text) != len(hits[b].Text) {
			return len(hits[a].Text) < len(hits[b].Text)
		}
		return hits[a].Text < hits[b].Text
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Augment appends excerpts to the system instruction under a fixed header.
// With no excerpts the instruction is returned unchanged.
func Augment(system string, excerpts []Excerpt) string {
	if len(excerpts) == 0 {
		return system
	}
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nTrechos do manual relevantes para a pergunta:\n")
	for _, e := range excerpts {
		b.WriteString("- ")
		if e.Section != "" {
			b.WriteString("[")
			b.WriteString(e.Section)
			b.WriteString("] ")
		}
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func tableRow(line string) string {
	cells := strings.Split(strings.Trim(line, "|"), "|")
	kept := make([]string, 0, len(cells))
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if strings.Trim(c, ":- ") == "" {
			continue
		}
		kept = append(kept, c)
	}
	return strings.Join(kept, " ")
}

// fold lowercases s and strips combining marks ("Praça" -> "praca").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func (m *Manual) tokenize(s string) map[string]struct{} {
	words := strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, skip := m.cfg.stopwords[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func wordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = fold(strings.TrimSpace(w)); w != "" {
			m[w] = struct{}{}
		}
	}
	return m
}

var portugueseStopwords = []string{
	"a", "o", "as", "os", "um", "uma", "de", "da", "do", "das", "dos",
	"em", "na", "no", "nas", "nos", "para", "por", "com", "sem", "que",
	"e", "ou", "se", "como", "qual", "quais", "onde", "quando", "eu",
	"voce", "ao", "aos", "isso", "esse", "essa", "este", "esta", "ja",
	"mais", "menos", "sobre", "the", "and", "to", "of", "in", "is",
}
