// Package source turns chapter text into the segments the scanner reads.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/japaniel/termaudit/pkg/audit"
)

// Verse is one numbered line of a chapter.
type Verse struct {
	Number int
	Text   string
}

// verseStart matches a verse number at the start of a line: "1 ", "1. ", "1) ", "1: ".
var verseStart = regexp.MustCompile(`(?m)^[ \t]*(\d+)[ \t]*[.:)]?[ \t]+`)

// ParseVerses splits verse-numbered text into verses. Text before the first
// number is dropped; a number seen twice keeps its first occurrence and the
// later text is appended to it.
func ParseVerses(text string) []Verse {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	locs := verseStart.FindAllStringSubmatchIndex(text, -1)

	byNum := map[int]int{}
	var verses []Verse
	for i, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n <= 0 {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := collapseSpace(text[loc[1]:end])
		if j, ok := byNum[n]; ok {
			if body != "" {
				verses[j].Text = strings.TrimSpace(verses[j].Text + " " + body)
			}
			continue
		}
		byNum[n] = len(verses)
		verses = append(verses, Verse{Number: n, Text: body})
	}
	sort.SliceStable(verses, func(i, j int) bool { return verses[i].Number < verses[j].Number })
	return verses
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SegmentID is the id a verse gets inside its chapter.
func SegmentID(n int) string { return "v" + strconv.Itoa(n) }

// Label renders the human location of a verse, e.g. "Zapuura 1:1".
func Label(book string, chapter, verse int) string {
	return fmt.Sprintf("%s %d:%d", book, chapter, verse)
}

// SplitVerses builds source-only segments from verse-numbered text.
func SplitVerses(text, book string, chapter int) []audit.Segment {
	verses := ParseVerses(text)
	out := make([]audit.Segment, 0, len(verses))
	for _, v := range verses {
		out = append(out, audit.Segment{
			ID:            SegmentID(v.Number),
			SourceText:    v.Text,
			LocationLabel: Label(book, chapter, v.Number),
		})
	}
	return out
}

// Align pairs a source chapter with its translation by verse number. Verses
// present on one side only are kept with the other side empty.
func Align(sourceText, targetText, book string, chapter int) []audit.Segment {
	src := ParseVerses(sourceText)
	tgt := ParseVerses(targetText)

	type pair struct{ source, target string }
	pairs := map[int]*pair{}
	var nums []int
	get := func(n int) *pair {
		p, ok := pairs[n]
		if !ok {
			p = &pair{}
			pairs[n] = p
			nums = append(nums, n)
		}
		return p
	}
	for _, v := range src {
		get(v.Number).source = v.Text
	}
	for _, v := range tgt {
		get(v.Number).target = v.Text
	}
	sort.Ints(nums)

	out := make([]audit.Segment, 0, len(nums))
	for _, n := range nums {
		p := pairs[n]
		out = append(out, audit.Segment{
			ID:            SegmentID(n),
			SourceText:    p.source,
			TargetText:    p.target,
			LocationLabel: Label(book, chapter, n),
		})
	}
	return out
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
	// Bible pages mark verse numbers with <sup>; they become line starts.
	reSup = regexp.MustCompile(`(?si)<sup\b[^>]*>\s*(\d+)\s*</sup>`)
)

// SanitizeRuby removes ruby text (<rt>) and ruby parentheses (<rp>) so that
// interlinear annotations are not glued to the base text on extraction.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}

// markVerses turns <sup>n</sup> verse markers into "\nn " so the extracted
// text keeps one verse per line.
func markVerses(content []byte) []byte {
	return reSup.ReplaceAll(content, []byte("\n$1 "))
}

// Chapter is the text extracted from a chapter page.
type Chapter struct {
	Title    string
	Text     string
	Segments []audit.Segment
}

// FromHTML extracts a chapter from a saved HTML page and splits it into
// source segments.
func FromHTML(r io.Reader, pageURL, book string, chapter int) (*Chapter, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	cleaned := markVerses(SanitizeRuby(body))
	article, err := readability.FromReader(bytes.NewReader(cleaned), u)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}
	if strings.TrimSpace(article.TextContent) == "" {
		return nil, fmt.Errorf("extract article: no text content")
	}
	return &Chapter{
		Title:    strings.TrimSpace(article.Title),
		Text:     article.TextContent,
		Segments: SplitVerses(article.TextContent, book, chapter),
	}, nil
}

// Document is the on-disk form of a chapter's segments.
type Document struct {
	Book     string          `json:"book,omitempty"`
	Chapter  int             `json:"chapter,omitempty"`
	Segments []audit.Segment `json:"segments"`
}

// LoadSegments reads a segments file, either a Document or a bare array.
func LoadSegments(path string) ([]audit.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err == nil && doc.Segments != nil {
		return doc.Segments, nil
	}
	var segs []audit.Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, fmt.Errorf("failed to parse segments as document or array: %w", err)
	}
	if segs == nil {
		segs = []audit.Segment{}
	}
	return segs, nil
}

// SaveSegments writes segments as a Document.
func SaveSegments(path string, doc Document) error {
	if doc.Segments == nil {
		doc.Segments = []audit.Segment{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
