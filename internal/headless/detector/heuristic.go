// Package detector decides when a plain HTTP response should be re-fetched
// through headless Chrome.
package detector

import (
	"bytes"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

const (
	defaultThreshold = 2048
	scriptShareLimit = 25
)

// Heuristic promotes responses that look like a client-rendered shell.
type Heuristic struct {
	// BodyLengthThreshold is the size below which script-heavy bodies are
	// treated as shells.
	BodyLengthThreshold int
	// Markers force promotion when any of them appears in the body.
	Markers [][]byte
}

var defaultMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// NewHeuristic creates a detector; threshold 0 selects the default.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, Markers: defaultMarkers}
}

// ShouldPromote reports whether resp needs a rendered re-fetch. Only 200
// responses qualify; error statuses are left for the walker to report.
func (h *Heuristic) ShouldPromote(resp harvest.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range h.Markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptShare(body) >= scriptShareLimit
}

// scriptShare returns the percentage of body bytes taken up by inline
// script text.
func scriptShare(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	scripted := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripted += len(s.Text())
	})
	return scripted * 100 / len(body)
}
