// Package receipt turns OCR'd receipt text into bill items plus whatever
// tax, subtotal, and total lines it can recognize. Parsing is heuristic
// and intentionally forgiving: unrecognized lines are dropped, never an
// error.
package receipt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/atch2203/split-the-bill/internal/bill"
)

// Result is everything extracted from one receipt. The monetary fields
// are nil when no matching line was found.
type Result struct {
	Items     []bill.Item
	TaxAmount *float64
	Subtotal  *float64
	Total     *float64
}

var taxPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^tax\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^sales\s*tax\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^hst\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^gst\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^pst\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^vat\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^tax\s+\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)tax\s*\$?([\d,]+\.\d{2})\s*$`),
}

var subtotalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^sub\s*-?\s*total\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^subtotal\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^sub\s+\$?([\d,]+\.?\d*)`),
}

var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^total\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^grand\s*total\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^amount\s*due\s*:?\s*\$?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)^balance\s*due\s*:?\s*\$?([\d,]+\.?\d*)`),
}

// skipPatterns match lines that are receipt plumbing rather than items:
// totals, payment lines, metadata, dates, contact info, separators.
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(sub)?total`),
	regexp.MustCompile(`(?i)^grand\s*total`),
	regexp.MustCompile(`(?i)^tax`),
	regexp.MustCompile(`(?i)^tip`),
	regexp.MustCompile(`(?i)^gratuity`),
	regexp.MustCompile(`(?i)^service\s*(charge|fee)`),
	regexp.MustCompile(`(?i)^delivery\s*(charge|fee)`),
	regexp.MustCompile(`(?i)^discount`),
	regexp.MustCompile(`(?i)^coupon`),
	regexp.MustCompile(`(?i)^promo`),
	regexp.MustCompile(`(?i)^savings`),

	regexp.MustCompile(`(?i)^balance`),
	regexp.MustCompile(`(?i)^change`),
	regexp.MustCompile(`(?i)^cash\s*(back|tend|paid)?`),
	regexp.MustCompile(`(?i)^card`),
	regexp.MustCompile(`(?i)^visa`),
	regexp.MustCompile(`(?i)^master\s*card`),
	regexp.MustCompile(`(?i)^amex`),
	regexp.MustCompile(`(?i)^discover`),
	regexp.MustCompile(`(?i)^credit`),
	regexp.MustCompile(`(?i)^debit`),
	regexp.MustCompile(`(?i)^payment`),
	regexp.MustCompile(`(?i)^paid`),
	regexp.MustCompile(`(?i)^amount\s*(due|paid|tend)`),
	regexp.MustCompile(`(?i)^tender`),
	regexp.MustCompile(`(?i)^chip`),
	regexp.MustCompile(`(?i)^swipe`),
	regexp.MustCompile(`(?i)^contactless`),
	regexp.MustCompile(`(?i)^apple\s*pay`),
	regexp.MustCompile(`(?i)^google\s*pay`),

	regexp.MustCompile(`(?i)^thank\s*you`),
	regexp.MustCompile(`(?i)^receipt`),
	regexp.MustCompile(`(?i)^invoice`),
	regexp.MustCompile(`(?i)^order\s*(#|no|num)`),
	regexp.MustCompile(`(?i)^table\s*(#|no|num)?`),
	regexp.MustCompile(`(?i)^server`),
	regexp.MustCompile(`(?i)^cashier`),
	regexp.MustCompile(`(?i)^host`),
	regexp.MustCompile(`(?i)^guest`),
	regexp.MustCompile(`(?i)^check\s*(#|no|num)?`),
	regexp.MustCompile(`(?i)^ticket`),
	regexp.MustCompile(`(?i)^trans(action)?`),
	regexp.MustCompile(`(?i)^ref(erence)?`),
	regexp.MustCompile(`(?i)^auth(orization)?`),
	regexp.MustCompile(`(?i)^approval`),
	regexp.MustCompile(`(?i)^seq(uence)?`),
	regexp.MustCompile(`(?i)^batch`),
	regexp.MustCompile(`(?i)^terminal`),
	regexp.MustCompile(`(?i)^store\s*(#|no|num)?`),
	regexp.MustCompile(`(?i)^register`),
	regexp.MustCompile(`(?i)^pos`),

	regexp.MustCompile(`(?i)^date`),
	regexp.MustCompile(`(?i)^time`),
	regexp.MustCompile(`(?i)^\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}`),
	regexp.MustCompile(`(?i)^\d{1,2}:\d{2}`),

	regexp.MustCompile(`(?i)^tel`),
	regexp.MustCompile(`(?i)^phone`),
	regexp.MustCompile(`(?i)^fax`),
	regexp.MustCompile(`(?i)^address`),
	regexp.MustCompile(`(?i)^www\.`),
	regexp.MustCompile(`(?i)^http`),
	regexp.MustCompile(`(?i)^@`),
	regexp.MustCompile(`^\d{3}[.\-\s]?\d{3}[.\-\s]?\d{4}`),

	regexp.MustCompile(`(?i)^qty`),
	regexp.MustCompile(`(?i)^quantity`),
	regexp.MustCompile(`(?i)^item`),
	regexp.MustCompile(`(?i)^description`),
	regexp.MustCompile(`(?i)^price`),
	regexp.MustCompile(`(?i)^amount`),
	regexp.MustCompile(`(?i)^#\d+`),
	regexp.MustCompile(`(?i)^[*\-=_\s]+$`),
	regexp.MustCompile(`(?i)^page\s*\d`),
	regexp.MustCompile(`(?i)^reprint`),
	regexp.MustCompile(`(?i)^copy`),
	regexp.MustCompile(`(?i)^duplicate`),
	regexp.MustCompile(`(?i)^void`),
	regexp.MustCompile(`(?i)^refund`),
	regexp.MustCompile(`(?i)^return`),
	regexp.MustCompile(`(?i)^exchange`),
	regexp.MustCompile(`(?i)^member`),
	regexp.MustCompile(`(?i)^loyalty`),
	regexp.MustCompile(`(?i)^points`),
	regexp.MustCompile(`(?i)^rewards`),
	regexp.MustCompile(`(?i)^earn(ed)?`),
}

var (
	letterPattern = regexp.MustCompile(`[a-zA-Z]`)

	qtyFirstPattern = regexp.MustCompile(`(?i)^(\d+)\s*[x@]\s*(.+?)\s+\$?([\d,]+\.?\d*)\s*$`)
	qtyAfterPattern = regexp.MustCompile(`(?i)^(.+?)\s+[x@]?\s*(\d+)\s*[@x]?\s*\$?([\d,]+\.?\d*)\s*$`)
	dollarPattern   = regexp.MustCompile(`^(.+?)\s+\$([\d,]+\.?\d*)\s*$`)
	spacedPattern   = regexp.MustCompile(`^(.+?)\s{2,}([\d,]+\.\d{2})\s*$`)
	simplePattern   = regexp.MustCompile(`^(.+?)\s+([\d,]+\.\d{2})\s*$`)
)

type parsedLine struct {
	name     string
	price    float64
	quantity int
}

func shouldSkip(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 {
		return true
	}
	if len(letterPattern.FindAllString(trimmed, -1)) < 2 {
		return true
	}
	for _, p := range skipPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseLine tries the item shapes in priority order: quantity prefix,
// quantity suffix, explicit dollar price, column-spaced price, then a
// bare trailing price with a stricter sanity check.
func parseLine(line string) (parsedLine, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || shouldSkip(trimmed) {
		return parsedLine{}, false
	}

	if m := qtyFirstPattern.FindStringSubmatch(trimmed); m != nil {
		qty, _ := strconv.Atoi(m[1])
		name := strings.TrimSpace(m[2])
		if price, ok := parseAmount(m[3]); ok && name != "" && price > 0 {
			return parsedLine{name: name, price: price, quantity: qty}, true
		}
	}

	if m := qtyAfterPattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.TrimSpace(m[1])
		qty, _ := strconv.Atoi(m[2])
		if price, ok := parseAmount(m[3]); ok && name != "" && price > 0 && qty > 0 && !shouldSkip(name) {
			return parsedLine{name: name, price: price, quantity: qty}, true
		}
	}

	if m := dollarPattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.TrimSpace(m[1])
		if price, ok := parseAmount(m[2]); ok && name != "" && price > 0 && !shouldSkip(name) {
			return parsedLine{name: name, price: price, quantity: 1}, true
		}
	}

	if m := spacedPattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.TrimSpace(m[1])
		if price, ok := parseAmount(m[2]); ok && name != "" && price > 0 && !shouldSkip(name) {
			return parsedLine{name: name, price: price, quantity: 1}, true
		}
	}

	if m := simplePattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.TrimSpace(m[1])
		if price, ok := parseAmount(m[2]); ok && len(name) >= 2 && price > 0 && price < 1000 && !shouldSkip(name) {
			return parsedLine{name: name, price: price, quantity: 1}, true
		}
	}

	return parsedLine{}, false
}

func matchAmount(trimmed string, patterns []*regexp.Regexp, max float64) (float64, bool) {
	for _, p := range patterns {
		m := p.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		v, ok := parseAmount(m[1])
		if ok && v > 0 && (max <= 0 || v < max) {
			return v, true
		}
		return 0, false
	}
	return 0, false
}

// Parse scans receipt text line by line, collecting items and the first
// tax, subtotal, and total lines encountered.
func Parse(text string) Result {
	var out Result
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if out.TaxAmount == nil {
			if v, ok := matchAmount(trimmed, taxPatterns, 1000); ok {
				out.TaxAmount = &v
			}
		}
		if out.Subtotal == nil {
			if v, ok := matchAmount(trimmed, subtotalPatterns, 0); ok {
				out.Subtotal = &v
			}
		}
		if out.Total == nil {
			if v, ok := matchAmount(trimmed, totalPatterns, 0); ok {
				out.Total = &v
			}
		}

		if p, ok := parseLine(line); ok {
			out.Items = append(out.Items, bill.Item{
				ID:         uuid.NewString(),
				Name:       p.name,
				Price:      p.price,
				Quantity:   p.quantity,
				AssignedTo: []string{},
			})
		}
	}
	return out
}

// FormatPrice renders an amount for display.
func FormatPrice(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// ParsePrice reads a user-typed price, stripping currency noise and
// clamping to zero on garbage or negative input.
func ParsePrice(input string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\t':
			return -1
		}
		return r
	}, input)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
