package offer

import (
	"regexp"
	"strings"
	"time"

	"brleiloes/superbidworker/internal/parse"
	"brleiloes/superbidworker/pkg/errors"
)

var (
	idUnsafeRegexp   = regexp.MustCompile(`[^a-z0-9-]`)
	idCollapseRegexp = regexp.MustCompile(`_+`)
)

// Normalizer maps raw offers into canonical records.
type Normalizer struct {
	// SiteURL is the public marketplace base used to build listing links.
	SiteURL string
	// Categories maps category slugs to display names.
	Categories map[string]string
}

// ExternalID derives the stable sink identity for a raw listing id. It is
// content-addressed, never time-based, so re-crawls converge on the same
// row.
func ExternalID(rawID string) string {
	cleaned := idUnsafeRegexp.ReplaceAllString(strings.ToLower(rawID), "_")
	cleaned = idCollapseRegexp.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return ""
	}
	return Source + "_" + cleaned
}

// Normalize converts a raw offer into a canonical record. It is pure given
// (raw, slug, now); only days_remaining is time-derived. Records that
// cannot satisfy the canonical invariants return a validation error and
// are dropped by the caller, counted, never raised further.
func (n *Normalizer) Normalize(o *RawOffer, categorySlug string, now time.Time) (*CanonicalRecord, error) {
	rawID := o.OfferID()
	if rawID == "" {
		return nil, errors.NewValidation(categorySlug, "offer without id")
	}
	externalID := ExternalID(rawID)

	category, ok := n.Categories[categorySlug]
	if !ok {
		category = "Outros"
	}

	title := parse.CleanText(o.Title(), 200)
	if title == "" {
		title = "Sem título"
	}

	detail := o.Detail()
	value := parse.ParseValue(detail.CurrentMinBid)
	if value == nil {
		value = parse.ParseValue(detail.InitialBidValue)
	}
	valueText := firstNonEmpty(detail.CurrentMinBidFormatted, detail.InitialBidValueFormatted)

	address := parse.CleanText(o.SellerCity(), 0)
	cityText, stateText := parse.ExtractCityState(address)
	if stateText == "" {
		stateText = parse.ExtractState(address)
	}

	description := o.Description()
	previewSource := description
	if previewSource == "" {
		previewSource = title
	}
	preview := parse.CleanText(parse.StripHTML(previewSource), 150)

	var auctionDate *time.Time
	var daysRemaining *int
	if end, ok := parse.ParseTimestamp(o.EndDate, now); ok {
		auctionDate = &end
		days := parse.DaysRemaining(end, now)
		daysRemaining = &days
	}

	auctionType := o.AuctionType()
	if auctionType == "" {
		auctionType = "Leilão"
	}

	record := &CanonicalRecord{
		Source:             Source,
		ExternalID:         externalID,
		Title:              title,
		Category:           category,
		Value:              value,
		ValueText:          valueText,
		City:               optional(cityText),
		State:              optional(stateText),
		Address:            address,
		Description:        description,
		DescriptionPreview: preview,
		AuctionDate:        auctionDate,
		DaysRemaining:      daysRemaining,
		AuctionType:        auctionType,
		AuctionName:        optional(o.AuctionName()),
		StoreName:          o.StoreName(),
		LotNumber:          optional(o.LotNumberText()),
		TotalVisits:        o.Visits,
		TotalBids:          o.TotalBids,
		TotalBidders:       o.TotalBidders,
		Link:               n.SiteURL + "/oferta/" + rawID,
		Metadata:           n.buildMetadata(o, detail),
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// buildMetadata carries auxiliary source fields through opaquely; the sink
// stores but does not index them. Keys follow the sink's original naming.
func (n *Normalizer) buildMetadata(o *RawOffer, detail *RawOfferDetail) map[string]interface{} {
	return map[string]interface{}{
		"leiloeiro":       o.Auctioneer(),
		"quantidade_lote": o.QuantityInLot,
		"vendedor": map[string]interface{}{
			"nome":    o.SellerName(),
			"empresa": o.SellerCompany(),
		},
		"preco_detalhado": map[string]interface{}{
			"inicial":          detail.InitialBidValue,
			"inicial_fmt":      deref(detail.InitialBidValueFormatted),
			"lance_minimo":     detail.CurrentMinBid,
			"lance_minimo_fmt": deref(detail.CurrentMinBidFormatted),
			"lance_maximo":     detail.CurrentMaxBid,
			"lance_maximo_fmt": deref(detail.CurrentMaxBidFormatted),
		},
		"midia": map[string]interface{}{
			"total_fotos":  o.PhotoCount(),
			"total_videos": o.VideoCount(),
		},
		"datas": map[string]interface{}{
			"criacao":    o.CreateAt,
			"publicacao": o.PublishedAt,
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			value := parse.CleanText(*c, 0)
			return &value
		}
	}
	return nil
}
