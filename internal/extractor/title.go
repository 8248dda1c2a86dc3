package extractor

import (
	"strings"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/ocr"
)

const (
	titleMinConfidence = 0.6
	titleMaxRunes      = 50
)

var titleDecoration = strings.NewReplacer(
	"《", "", "》", "",
	"【", "", "】", "",
	"〈", "", "〉", "",
	"「", "", "」", "",
	"『", "", "』", "",
	"[", "", "]", "",
	"*", "",
)

// TitleExtractor picks the title from a cover photo: the tallest confident
// block, or the tallest block of all when none is confident.
type TitleExtractor struct{}

func (TitleExtractor) Extract(in Input) ([]Field, error) {
	if len(in.Blocks) == 0 {
		return nil, apperrors.NewTitleNotFoundError("No text found on the cover")
	}

	// A confident block must also have some height and some text to win.
	best, ok := tallest(in.Blocks, func(b ocr.TextBlock) bool {
		return b.Confidence > titleMinConfidence && b.Height() > 0
	})
	rule := "confident_tallest"
	if !ok || strings.TrimSpace(best.Text) == "" {
		best, _ = tallest(in.Blocks, func(ocr.TextBlock) bool { return true })
		rule = "tallest"
	}

	title := CleanTitle(best.Text)
	if title == "" {
		return nil, apperrors.NewTitleNotFoundError("Tallest cover text is empty after cleanup")
	}

	return []Field{{Name: FieldTitle, Value: title, Status: StatusUnchecked, Rule: rule}}, nil
}

// tallest returns the first block of maximum height among those accepted by keep.
func tallest(blocks []ocr.TextBlock, keep func(ocr.TextBlock) bool) (ocr.TextBlock, bool) {
	var best ocr.TextBlock
	found := false
	for _, b := range blocks {
		if !keep(b) {
			continue
		}
		if !found || b.Height() > best.Height() {
			best, found = b, true
		}
	}
	return best, found
}

// CleanTitle strips bracket and asterisk decoration, trims and truncates to 50 runes.
func CleanTitle(s string) string {
	s = strings.TrimSpace(titleDecoration.Replace(s))
	if r := []rune(s); len(r) > titleMaxRunes {
		s = string(r[:titleMaxRunes])
	}
	return s
}
