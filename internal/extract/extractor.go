package extract

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// Selectors for the review listing markup.
const (
	SelectorReview    = `li[itemprop="review"]`
	SelectorDate      = `p.review_item_date`
	SelectorReviewer  = `p.reviewer_name span[itemprop="name"]`
	SelectorScore     = `span.review-score-badge`
	SelectorTitle     = `div.review_item_header_content span[itemprop="name"]`
	SelectorPositive  = `p.review_pos span[itemprop="reviewBody"]`
	SelectorNegative  = `p.review_neg span[itemprop="reviewBody"]`
	SelectorStayDate  = `p.review_staydate`
	SelectorNextPage  = `p.page_link.review_next_page a`
	dateLabelSep      = ": "
	stayDatePrefix    = "Stayed in"
	fragmentSeparator = " "
)

var errScoreMissing = errors.New("score node not found")

// Extractor parses review pages. It is stateless and safe for concurrent use.
type Extractor struct {
	base *url.URL
}

// New builds an Extractor that resolves next-page links against baseURL.
func New(baseURL string) (*Extractor, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Extractor{base: base}, nil
}

// Extract reads every review node on the page in document order. A review
// whose score is absent or not a finite number fails the whole page with a
// *harvest.MalformedRecordError.
func (e *Extractor) Extract(body []byte) (harvest.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return harvest.PageResult{}, &harvest.MalformedRecordError{Index: -1, Field: "document", Err: err}
	}

	var (
		records []harvest.Record
		failure error
	)
	doc.Find(SelectorReview).EachWithBreak(func(i int, node *goquery.Selection) bool {
		rec, err := parseReview(i, node)
		if err != nil {
			failure = err
			return false
		}
		records = append(records, rec)
		return true
	})
	if failure != nil {
		return harvest.PageResult{}, failure
	}

	next, err := e.nextURL(doc)
	if err != nil {
		return harvest.PageResult{}, err
	}
	return harvest.PageResult{Records: records, NextURL: next}, nil
}

func parseReview(index int, node *goquery.Selection) (harvest.Record, error) {
	score, err := parseScore(index, node)
	if err != nil {
		return harvest.Record{}, err
	}

	positive := joinTexts(node.Find(SelectorPositive))
	negative := joinTexts(node.Find(SelectorNegative))

	return harvest.Record{
		Date:         Clean(reviewDate(node)),
		ReviewerName: Clean(firstText(node, SelectorReviewer)),
		Score:        score,
		Title:        Clean(firstText(node, SelectorTitle)),
		Content:      Clean(positive + fragmentSeparator + negative),
		StayDate:     Clean(stayDate(node)),
	}, nil
}

func parseScore(index int, node *goquery.Selection) (float64, error) {
	badge := node.Find(SelectorScore).First()
	if badge.Length() == 0 {
		return 0, &harvest.MalformedRecordError{Index: index, Field: "score", Err: errScoreMissing}
	}
	raw := strings.TrimSpace(badge.Text())
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &harvest.MalformedRecordError{Index: index, Field: "score", Value: raw, Err: err}
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, &harvest.MalformedRecordError{
			Index: index,
			Field: "score",
			Value: raw,
			Err:   errors.New("score is not a finite number"),
		}
	}
	return score, nil
}

func reviewDate(node *goquery.Selection) string {
	text := firstText(node, SelectorDate)
	if idx := strings.LastIndex(text, dateLabelSep); idx >= 0 {
		text = text[idx+len(dateLabelSep):]
	}
	return strings.TrimSpace(text)
}

func stayDate(node *goquery.Selection) string {
	sel := node.Find(SelectorStayDate).First()
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(sel.Text(), stayDatePrefix, ""))
}

func firstText(node *goquery.Selection, selector string) string {
	sel := node.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return sel.Text()
}

func joinTexts(sel *goquery.Selection) string {
	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.Join(parts, fragmentSeparator)
}

func (e *Extractor) nextURL(doc *goquery.Document) (string, error) {
	link := doc.Find(SelectorNextPage).First()
	if link.Length() == 0 {
		return "", nil
	}
	href, ok := link.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", &harvest.MalformedRecordError{Index: -1, Field: "next_page", Value: href, Err: err}
	}
	return e.base.ResolveReference(ref).String(), nil
}
