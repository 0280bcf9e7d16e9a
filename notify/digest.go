/*
Package notify renders the featured-deal digest and delivers it over SMTP.
*/
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/aluiziolira/go-fare-expander/scoring"
)

// Digest is the data behind one notification.
type Digest struct {
	GeneratedAt time.Time
	Featured    []*models.ScoredDeal
	Bundles     []models.RegionBundle
	Valid       int
}

// RenderedMessage is a digest ready to send.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

// BuildDigest selects featured deals and regional bundles from the accepted deals of a run.
func BuildDigest(deals []*models.ScoredDeal, minBundle int, now time.Time) Digest {
	d := Digest{GeneratedAt: now}
	for _, deal := range deals {
		if deal == nil || !deal.IsValid {
			continue
		}
		d.Valid++
		if deal.IsFeatured {
			d.Featured = append(d.Featured, deal)
		}
	}
	sort.SliceStable(d.Featured, func(i, j int) bool {
		return d.Featured[i].Score > d.Featured[j].Score
	})
	d.Bundles = scoring.BundleByRegion(deals, minBundle)
	return d
}

// Empty reports whether the digest has nothing worth sending.
func (d Digest) Empty() bool {
	return len(d.Featured) == 0 && len(d.Bundles) == 0
}

// Renderer turns a digest into an email.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer creates a renderer with the default HTML template.
func NewRenderer() *Renderer {
	t := template.Must(template.New("digest").Funcs(template.FuncMap{
		"pct": formatPct,
	}).Parse(digestHTMLTemplate))
	return &Renderer{tmpl: t}
}

// Render produces an HTML digest with a plain text alternative.
func (r *Renderer) Render(d Digest) (*RenderedMessage, error) {
	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, d); err != nil {
		return nil, fmt.Errorf("failed to render digest template: %w", err)
	}
	return &RenderedMessage{
		Subject: subject(d),
		Text:    renderPlainText(d),
		HTML:    htmlBuf.String(),
	}, nil
}

func subject(d Digest) string {
	if len(d.Featured) == 1 {
		f := d.Featured[0]
		return fmt.Sprintf("Fare deal: %s to %s from $%d", f.Origin, f.Destination, f.ReferencePrice)
	}
	return fmt.Sprintf("Fare deals: %d featured, %d regional bundles (%s)",
		len(d.Featured), len(d.Bundles), d.GeneratedAt.Format("02 Jan 2006"))
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func renderPlainText(d Digest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Fare digest %s\n", d.GeneratedAt.Format("02 Jan 2006 15:04 MST")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	sb.WriteString(fmt.Sprintf("Valid deals: %d\n\n", d.Valid))

	if len(d.Featured) > 0 {
		sb.WriteString("FEATURED\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, f := range d.Featured {
			writeDealLine(&sb, f)
		}
		sb.WriteString("\n")
	}

	for _, b := range d.Bundles {
		sb.WriteString(fmt.Sprintf("%s TO %s (%d deals)\n", b.Origin, strings.ToUpper(b.Region), len(b.Deals)))
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, deal := range b.Deals {
			writeDealLine(&sb, deal)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeDealLine(sb *strings.Builder, d *models.ScoredDeal) {
	sb.WriteString(fmt.Sprintf("• %s-%s $%d (usual $%d, %s off) %s to %s, %d similar dates\n",
		d.Origin, d.Destination, d.ReferencePrice, d.EstimatedUsualPrice, formatPct(d.DiscountPct),
		d.FirstFlexDate, d.LastFlexDate, d.FlexCount))
}
