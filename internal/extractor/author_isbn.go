package extractor

import (
	"image"
	"regexp"
	"strings"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/isbn"
	"github.com/anime-shed/bookscan-go/internal/logger"
)

// Author patterns in priority order. The first one producing a non-empty
// value wins.
var authorRules = []rule{
	{
		name:  "institution",
		re:    regexp.MustCompile(`(?m)^[ \t]*([\p{Han}A-Za-z0-9·&'.\- ]+?(?:大学|学院|系|研究所|教研室|(?i:university|institute|college|department)))[ \t]*(?:编|(?i:ed\.))?[ \t]*$`),
		group: 1,
	},
	// A publisher only counts as the author when it is marked as editor;
	// otherwise it is the imprint line found on every copyright page.
	{
		name:  "institution",
		re:    regexp.MustCompile(`(?m)^[ \t]*([\p{Han}A-Za-z0-9·&'.\- ]+?(?:出版社|(?i:press)))[ \t]*(?:编|(?i:ed\.))[ \t]*$`),
		group: 1,
	},
	{name: "role_marker", re: regexp.MustCompile(`(\p{Han}{2,4}?)[ \t]*(?:主编|编著|著)`), group: 1},
	{name: "role_label", re: regexp.MustCompile(`(?:主编|编著)[:：][ \t]*([^\n]+)`), group: 1},
	{name: "chief_editor", re: regexp.MustCompile(`(?i)([A-Za-z][A-Za-z.'\- ]{1,40}?),?[ \t]+\(?chief editor\)?`), group: 1},
	{name: "compiled_by", re: regexp.MustCompile(`(?i)(?:compiled|authored|edited) by[ \t]+([^\n]+)`), group: 1},
	{name: "author_label", re: regexp.MustCompile(`(?:作者|(?i:author))[ \t]*[:：][ \t]*([^\n]+)`), group: 1},
	{name: "bare_marker", re: regexp.MustCompile(`著[ \t]*([^\n]+)`), group: 1},
	{name: "bare_by", re: regexp.MustCompile(`(?i)\bby[ \t]+([^\n]+)`), group: 1},
}

// An ISBN label followed by thirteen digits with optional single hyphen or
// space separators. The trailing class stops a longer digit run from matching.
var isbnPattern = regexp.MustCompile(`(?:(?i:isbn)|标准书号)[-:：\s]*(97[89](?:[- ]?\d){10})(?:\D|$)`)

// BarcodeReader decodes an ISBN barcode from the photo
type BarcodeReader interface {
	DecodeISBN(img image.Image) (string, error)
}

// AuthorIsbnExtractor reads the copyright page. A missing author is not an
// error; a missing valid ISBN is.
type AuthorIsbnExtractor struct {
	// Barcode, when set, is consulted after every printed candidate fails.
	Barcode BarcodeReader
}

func (e AuthorIsbnExtractor) Extract(in Input) ([]Field, error) {
	if len(in.Blocks) == 0 {
		return nil, apperrors.NewNoTextDetectedError("No text found on the information page")
	}

	texts := make([]string, len(in.Blocks))
	for i, b := range in.Blocks {
		texts[i] = b.Text
	}
	fullText := strings.Join(texts, "\n")

	var fields []Field
	if author, ruleName, ok := FindAuthor(fullText); ok {
		fields = append(fields, Field{Name: FieldAuthor, Value: author, Status: StatusUnchecked, Rule: ruleName})
	}

	code, source, ok := e.findISBN(fullText, in.Image)
	if !ok {
		return nil, apperrors.NewIsbnChecksumError("No ISBN candidate passed checksum validation")
	}
	fields = append(fields, Field{Name: FieldISBN, Value: code, Status: StatusValid, Rule: source})

	return fields, nil
}

// FindAuthor applies the author rules in priority order.
func FindAuthor(text string) (author, ruleName string, ok bool) {
	for _, r := range authorRules {
		v, found := r.firstMatch(text)
		if !found {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), ":：")
		v = strings.TrimSpace(v)
		if v != "" {
			return v, r.name, true
		}
	}
	return "", "", false
}

// ISBNCandidates returns the cleaned candidates in order of appearance.
func ISBNCandidates(text string) []string {
	matches := isbnPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, isbn.Clean(m[1]))
	}
	return out
}

func (e AuthorIsbnExtractor) findISBN(text string, img image.Image) (string, string, bool) {
	for _, c := range ISBNCandidates(text) {
		if isbn.Validate(c) {
			return c, "printed", true
		}
		logger.WithField("candidate", c).Debug("ISBN candidate failed checksum")
	}

	if e.Barcode == nil || img == nil {
		return "", "", false
	}
	code, err := e.Barcode.DecodeISBN(img)
	if err != nil {
		logger.WithError(err).Debug("Barcode fallback found nothing")
		return "", "", false
	}
	if !isbn.Validate(code) {
		return "", "", false
	}
	return code, "barcode", true
}
