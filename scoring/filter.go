package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/aluiziolira/go-fare-expander/wire"
)

const (
	discountCap    = 0.5
	flexibilityCap = 30
)

// MaxQualifyingPrice is the highest whole-unit fare within tolerance of ref.
func MaxQualifyingPrice(ref int, tolerance float64) int {
	return int(math.Floor(float64(ref)*(1+tolerance) + 1e-9))
}

// QualifyingSamples returns the samples priced within tolerance of the reference price.
func QualifyingSamples(result models.ExpansionResult, cfg Config) []models.PriceSample {
	limit := MaxQualifyingPrice(result.Candidate.Price, cfg.Tolerance)
	out := make([]models.PriceSample, 0, len(result.Samples))
	for _, s := range result.Samples {
		if s.Price <= limit {
			out = append(out, s)
		}
	}
	return out
}

// ComputeMetrics derives discount economics and flexibility. The usual price comes only
// from the discovery signal; the sample set measures flexibility, never discount.
func ComputeMetrics(result models.ExpansionResult, cfg Config) models.DealMetrics {
	m := models.DealMetrics{FlexCount: len(QualifyingSamples(result, cfg))}
	discount := result.Candidate.DiscountAmount
	if discount > 0 {
		m.DiscountAmount = discount
		m.EstimatedUsualPrice = result.Candidate.Price + discount
		m.DiscountPct = float64(discount) / float64(m.EstimatedUsualPrice)
	}
	return m
}

// IsValidDeal requires both the flexibility and the discount thresholds.
func IsValidDeal(m models.DealMetrics, cfg Config) bool {
	return m.FlexCount >= cfg.MinSimilarDates && m.DiscountPct >= cfg.MinDiscountPct
}

// IsFeaturedDeal applies the stricter thresholds to a deal that is already valid.
func IsFeaturedDeal(m models.DealMetrics, cfg Config) bool {
	if !IsValidDeal(m, cfg) {
		return false
	}
	return m.FlexCount >= cfg.FeaturedMinSimilarDates && m.DiscountPct >= cfg.FeaturedMinDiscountPct
}

// Score combines capped discount and flexibility into [0, 1] for unit weights.
func Score(m models.DealMetrics, cfg Config) float64 {
	pct := math.Min(math.Max(m.DiscountPct, 0), discountCap) / discountCap
	flex := float64(min(m.FlexCount, flexibilityCap)) / flexibilityCap
	return cfg.DiscountWeight*pct + cfg.FlexibilityWeight*flex
}

// Links builds navigable search URLs for similar dates.
type Links struct {
	SearchBase string
	Language   string
	Currency   string
}

// Evaluate turns an expansion into its final scored record.
func Evaluate(result models.ExpansionResult, cfg Config, links Links, now time.Time) *models.ScoredDeal {
	c := result.Candidate
	metrics := ComputeMetrics(result, cfg)
	if result.Status == models.StatusFailed {
		metrics.FlexCount = 0
	}

	deal := &models.ScoredDeal{
		DealID:         DealID(c),
		Origin:         c.Origin,
		Destination:    c.Destination,
		Region:         c.Region,
		OutboundDate:   c.OutboundDate,
		ReturnDate:     c.ReturnDate,
		ReferencePrice: c.Price,
		Status:         result.Status,
		DealMetrics:    metrics,
		Score:          Score(metrics, cfg),
		FirstFlexDate:  c.OutboundDate,
		LastFlexDate:   c.ReturnDate,
		SimilarDates:   []models.SimilarDate{},
		Tolerance:      cfg.Tolerance,
		ExpandedAt:     now,
	}
	if result.Status == models.StatusFailed {
		deal.Score = 0
		return deal
	}

	deal.IsValid = IsValidDeal(metrics, cfg)
	deal.IsFeatured = IsFeaturedDeal(metrics, cfg)

	qualifying := QualifyingSamples(result, cfg)
	for i, s := range qualifying {
		if i == 0 || s.Outbound.Before(deal.FirstFlexDate) {
			deal.FirstFlexDate = s.Outbound
		}
		if i == 0 || s.Return.After(deal.LastFlexDate) {
			deal.LastFlexDate = s.Return
		}
		similar := models.SimilarDate{Outbound: s.Outbound, Return: s.Return, Price: s.Price}
		if links.SearchBase != "" {
			if token, err := wire.EncodeSearchToken(c.Origin, c.Destination, s.Outbound, s.Return); err == nil {
				similar.URL = wire.SearchURL(links.SearchBase, token, links.Language, links.Currency)
			}
		}
		deal.SimilarDates = append(deal.SimilarDates, similar)
	}
	return deal
}

// DealID is origin-destination-YYYYMMDD of the reference outbound date, lower-cased.
func DealID(c models.DealCandidate) string {
	return strings.ToLower(c.Origin) + "-" + strings.ToLower(c.Destination) + "-" + c.OutboundDate.Format("20060102")
}

// BundleByRegion groups valid deals per origin and region, keeping groups with at least
// minDeals deals. Bundles and their deals are ordered by descending score.
func BundleByRegion(deals []*models.ScoredDeal, minDeals int) []models.RegionBundle {
	groups := make(map[[2]string][]*models.ScoredDeal)
	for _, d := range deals {
		if d == nil || !d.IsValid {
			continue
		}
		key := [2]string{d.Origin, d.Region}
		groups[key] = append(groups[key], d)
	}

	bundles := make([]models.RegionBundle, 0, len(groups))
	for key, group := range groups {
		if len(group) < minDeals {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score != group[j].Score {
				return group[i].Score > group[j].Score
			}
			return group[i].DealID < group[j].DealID
		})
		bundles = append(bundles, models.RegionBundle{Origin: key[0], Region: key[1], Deals: group})
	}
	sort.Slice(bundles, func(i, j int) bool {
		if bundles[i].Deals[0].Score != bundles[j].Deals[0].Score {
			return bundles[i].Deals[0].Score > bundles[j].Deals[0].Score
		}
		if bundles[i].Origin != bundles[j].Origin {
			return bundles[i].Origin < bundles[j].Origin
		}
		return bundles[i].Region < bundles[j].Region
	})
	return bundles
}
