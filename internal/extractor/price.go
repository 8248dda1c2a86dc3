package extractor

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/ocr"
)

// Accepted prices lie strictly between these bounds
const (
	minPrice = 0
	maxPrice = 10000
)

var priceRules = []rule{
	{name: "label", re: regexp.MustCompile(`(?:定价|价格|￥|¥|(?i:price))\s*[:：]?\s*(\d+\.?\d*)`), group: 1},
	{name: "two_decimals", re: regexp.MustCompile(`\b\d+\.\d{2}\b`), group: 0},
	{name: "yuan", re: regexp.MustCompile(`(?:^|\D)(\d+)\s*元整?`), group: 1},
	{name: "currency_code", re: regexp.MustCompile(`(?:USD|CNY|EUR)\s*(\d+\.\d{2})`), group: 1},
}

// PriceExtractor reads the cover price from a back cover or copyright page.
type PriceExtractor struct{}

func (PriceExtractor) Extract(in Input) ([]Field, error) {
	blocks := make([]ocr.TextBlock, 0, len(in.Blocks))
	for _, b := range in.Blocks {
		if b.Width() > 0 && b.Height() > 0 {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil, apperrors.NewNoTextDetectedError("No usable text found for the price")
	}

	price, ruleName, ok := FindPrice(MergeReadingOrder(blocks))
	if !ok {
		return nil, apperrors.NewPriceNotFoundError("No price pattern produced a value in range")
	}

	return []Field{{
		Name:   FieldPrice,
		Value:  strconv.FormatFloat(price, 'f', 2, 64),
		Number: price,
		Status: StatusValid,
		Rule:   ruleName,
	}}, nil
}

// MergeReadingOrder sorts blocks top to bottom then left to right and joins
// their text with single spaces.
func MergeReadingOrder(blocks []ocr.TextBlock) string {
	sorted := make([]ocr.TextBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, bj := sorted[i].Bounds(), sorted[j].Bounds()
		if bi.Min.Y != bj.Min.Y {
			return bi.Min.Y < bj.Min.Y
		}
		return bi.Min.X < bj.Min.X
	})

	texts := make([]string, len(sorted))
	for i, b := range sorted {
		texts[i] = b.Text
	}
	return strings.Join(texts, " ")
}

// FindPrice tries each pattern's first match in priority order and returns
// the first value that parses and falls in range after rounding to cents.
func FindPrice(text string) (float64, string, bool) {
	for _, r := range priceRules {
		raw, found := r.firstMatch(text)
		if !found {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		v = math.Round(v*100) / 100
		if v > minPrice && v < maxPrice {
			return v, r.name, true
		}
	}
	return 0, "", false
}
