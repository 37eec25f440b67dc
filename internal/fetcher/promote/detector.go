package promote

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultSmallPageBytes = 2048
	// scriptSharePercent is the share of a small page's bytes that must be
	// inline script before it is treated as client rendered.
	scriptSharePercent = 25
)

var appShellMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
}

// Detector decides whether a probed page needs a browser to reveal its links.
type Detector struct {
	smallPageBytes int
}

// NewDetector returns a Detector. Pages shorter than smallPageBytes are
// checked for script-heavy markup; zero picks 2 KiB.
func NewDetector(smallPageBytes int) *Detector {
	if smallPageBytes <= 0 {
		smallPageBytes = defaultSmallPageBytes
	}
	return &Detector{smallPageBytes: smallPageBytes}
}

// ShouldRender reports whether the page looks client rendered. Only 2xx
// pages qualify. doc may be nil when the body could not be parsed.
func (d *Detector) ShouldRender(status int, body []byte, doc *goquery.Document) bool {
	if status < 200 || status > 299 {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range appShellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if doc == nil || len(body) >= d.smallPageBytes {
		return false
	}
	if doc.Find("a[href]").Length() > 0 {
		return false
	}
	return scriptBytes(doc)*100/len(body) >= scriptSharePercent
}

func scriptBytes(doc *goquery.Document) int {
	total := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		total += len(s.Text())
		if _, ok := s.Attr("src"); ok {
			// External bundles count as a full tag's worth of script.
			total += len("<script src></script>")
		}
	})
	return total
}
