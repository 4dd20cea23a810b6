// Package docx implements the DOCX paragraph extractor (C2): it reads a
// Word .docx archive and produces an ordered list of paragraphs with
// computed hierarchical numbers, following the numbering rules that decide
// search quality.
//
// A .docx file is a ZIP archive of XML parts; the only part this package
// reads is word/document.xml. word/numbering.xml is not read: numbering
// levels come from each paragraph's ilvl or its named paragraph style.
package docx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nakaz-search/nakaz-search/internal/fwindex"
)

var (
	bareNumberPattern = regexp.MustCompile(`^\s*\d+(\.\d+)*\.\s+`)
	basisPattern      = regexp.MustCompile(`^\s*Підстава:`)
)

// skipTexts are prefixes that cause a paragraph to be dropped entirely.
var skipTexts = []string{"ПОГОДЖЕНО", "Документ підготовлено"}

// styleLevelMap maps named paragraph styles to a numbering level 1..4.
var styleLevelMap = map[string]int{
	"OiiSList1": 1, "OiiSList2": 2, "OiiSList3": 3, "OiiSList4": 4,
	"Oii_S_List_1": 1, "Oii_S_List_2": 2, "Oii_S_List_3": 3, "Oii_S_List_4": 4,
}

// xmlDocument mirrors the subset of word/document.xml this package reads.
// Struct tags omit the "w:" namespace prefix deliberately: encoding/xml
// matches on local name when no namespace is given, which is sufficient
// here since document.xml declares a single namespace for all of these
// elements.
type xmlDocument struct {
	Body struct {
		Paragraphs []xmlParagraph `xml:"p"`
	} `xml:"body"`
}

type xmlParagraph struct {
	PPr struct {
		PStyle *xmlVal `xml:"pStyle"`
		NumPr  *struct {
			Ilvl  *xmlVal `xml:"ilvl"`
			NumId *xmlVal `xml:"numId"`
		} `xml:"numPr"`
	} `xml:"pPr"`
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

type xmlVal struct {
	Val string `xml:"val,attr"`
}

func (p xmlParagraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t)
		}
	}
	return b.String()
}

func (p xmlParagraph) style() string {
	if p.PPr.PStyle != nil {
		return p.PPr.PStyle.Val
	}
	return ""
}

// level returns the 1-based numbering level from numPr/ilvl or a recognized
// style name, and whether one was found at all.
func (p xmlParagraph) level() (int, bool) {
	if p.PPr.NumPr != nil && p.PPr.NumPr.Ilvl != nil {
		ilvl, err := strconv.Atoi(p.PPr.NumPr.Ilvl.Val)
		if err == nil {
			return ilvl + 1, true
		}
	}
	if lvl, ok := styleLevelMap[p.style()]; ok {
		return lvl, true
	}
	return 0, false
}

// numberingState tracks the four-level hierarchical counter across a
// document's paragraphs.
type numberingState struct {
	l1, l2, l3, l4 int
}

func (s *numberingState) advance(level int) string {
	switch level {
	case 1:
		s.l1++
		s.l2, s.l3, s.l4 = 0, 0, 0
		return fmt.Sprintf("%d. ", s.l1)
	case 2:
		s.l2++
		s.l3, s.l4 = 0, 0
		return fmt.Sprintf("%d.%d. ", s.l1, s.l2)
	case 3:
		s.l3++
		s.l4 = 0
		return fmt.Sprintf("%d.%d.%d. ", s.l1, s.l2, s.l3)
	default:
		s.l4++
		return fmt.Sprintf("%d.%d.%d.%d. ", s.l1, s.l2, s.l3, s.l4)
	}
}

// section is one logical paragraph before the join/split flattening pass:
// a numbered (or number-carrying) line followed by zero or more plain
// continuation lines joined with "\n".
type section struct {
	lines []string
}

// ExtractParagraphs parses path as a DOCX archive and returns its ordered,
// flattened paragraphs. Failure to open the ZIP, a missing
// word/document.xml part, or malformed XML are all reported as descriptive
// errors; the caller (the scanner) treats such a file as unparseable for
// the current cycle.
func ExtractParagraphs(path string) ([]fwindex.Paragraph, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s as zip: %w", path, err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("%s: missing word/document.xml", path)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("reading word/document.xml: %w", err)
	}
	defer rc.Close()

	var doc xmlDocument
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing word/document.xml: %w", err)
	}

	return buildParagraphs(doc.Body.Paragraphs), nil
}

func buildParagraphs(xmlParas []xmlParagraph) []fwindex.Paragraph {
	state := &numberingState{}
	var sections []section

	for _, xp := range xmlParas {
		text := strings.TrimSpace(xp.text())
		if text == "" {
			continue
		}
		if skipped(text) {
			continue
		}

		switch {
		case basisPattern.MatchString(text):
			appendLine(&sections, text)

		case bareNumberPattern.MatchString(text):
			sections = append(sections, section{lines: []string{text}})

		default:
			if level, ok := xp.level(); ok {
				number := state.advance(level)
				sections = append(sections, section{lines: []string{number + text}})
			} else {
				appendLine(&sections, text)
			}
		}
	}

	return flatten(sections)
}

func appendLine(sections *[]section, text string) {
	if len(*sections) == 0 {
		*sections = append(*sections, section{lines: []string{text}})
		return
	}
	last := &(*sections)[len(*sections)-1]
	last.lines = append(last.lines, text)
}

func skipped(text string) bool {
	for _, prefix := range skipTexts {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// flatten performs the join/split round trip: each section's lines are
// joined with "\n" then split back on "\n", discarding blank intermediate
// runs, collapsing the section into one or more final Paragraph values in
// order. has_numbering is true only for the first line of a section, and
// only when that line starts with a numeric prefix of up to four levels,
// whether computed here or already present in the paragraph text.
func flatten(sections []section) []fwindex.Paragraph {
	var out []fwindex.Paragraph

	for _, s := range sections {
		joined := strings.Join(s.lines, "\n")
		for i, line := range strings.Split(joined, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			hasNumbering := i == 0 && hasComputedPrefix(line)
			out = append(out, fwindex.Paragraph{
				Text:         line,
				HasNumbering: hasNumbering,
			})
		}
	}

	return out
}

// computedPrefixPattern matches a prefix of the shape this package generates
// ("1. ", "1.2. ", "1.2.3. ", "1.2.3.4. "); a bare prefix of that shape
// already present in the text matches as well.
var computedPrefixPattern = regexp.MustCompile(`^\d+(\.\d+){0,3}\. `)

func hasComputedPrefix(line string) bool {
	return computedPrefixPattern.MatchString(line)
}
