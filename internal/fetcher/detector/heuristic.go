// Package detector recognizes listing pages whose rows are rendered by
// client-side script, which the static path cannot see.
package detector

import (
	"bytes"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher"
)

// Heuristic flags application shells: empty bodies, framework mount points,
// and short documents made up mostly of script.
type Heuristic struct {
	// Bodies at or above this many bytes are never judged by script share.
	BodyLengthThreshold int
	// ScriptShare is the fraction of the body inside <script> elements at
	// which a short page counts as a shell.
	ScriptShare float64
}

// NewHeuristic creates a detector. A zero threshold selects 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold, ScriptShare: 0.25}
}

var mountPoints = []string{
	"#__next",
	"#__nuxt",
	"#root",
	"#app",
	"[data-reactroot]",
}

// ClientRendered reports whether page looks like an application shell that
// only a browser session can populate.
func (h *Heuristic) ClientRendered(page fetcher.Page) bool {
	if page.StatusCode != 0 && page.StatusCode != http.StatusOK {
		return false
	}
	body := bytes.TrimSpace(page.Body)
	if len(body) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range mountPoints {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	if len(body) >= h.BodyLengthThreshold {
		return false
	}
	return scriptShare(doc, len(body)) >= h.ScriptShare
}

func scriptShare(doc *goquery.Document, total int) float64 {
	script := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			script += len(html)
		}
	})
	return float64(script) / float64(total)
}
