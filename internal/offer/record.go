package offer

import (
	"time"

	"brleiloes/superbidworker/internal/parse"
	"brleiloes/superbidworker/pkg/errors"
)

// Source tags every canonical record with its origin.
const Source = "superbid"

// CanonicalRecord is the normalized, store-ready representation of one
// listing. Field names match the sink schema.
type CanonicalRecord struct {
	Source             string                 `json:"source"`
	ExternalID         string                 `json:"external_id"`
	Title              string                 `json:"title"`
	Category           string                 `json:"category"`
	Value              *float64               `json:"value"`
	ValueText          *string                `json:"value_text"`
	City               *string                `json:"city"`
	State              *string                `json:"state"`
	Address            string                 `json:"address"`
	Description        string                 `json:"description"`
	DescriptionPreview string                 `json:"description_preview"`
	AuctionDate        *time.Time             `json:"auction_date"`
	DaysRemaining      *int                   `json:"days_remaining"`
	AuctionType        string                 `json:"auction_type"`
	AuctionName        *string                `json:"auction_name"`
	StoreName          string                 `json:"store_name"`
	LotNumber          *string                `json:"lot_number"`
	TotalVisits        int                    `json:"total_visits"`
	TotalBids          int                    `json:"total_bids"`
	TotalBidders       int                    `json:"total_bidders"`
	Link               string                 `json:"link"`
	Metadata           map[string]interface{} `json:"metadata"`
}

// Validate enforces the invariants a record must satisfy before it may
// reach the sink: non-empty identity, link, and store name, and a state
// that is either nil or a valid two-letter UF code.
func (r *CanonicalRecord) Validate() error {
	if r.ExternalID == "" {
		return errors.NewValidation(r.Category, "record without external_id")
	}
	if r.Link == "" {
		return errors.NewValidation(r.Category, "record without link")
	}
	if r.StoreName == "" {
		return errors.NewValidation(r.Category, "record without store_name")
	}
	if r.State != nil && !parse.IsUF(*r.State) {
		return errors.NewValidation(r.Category, "record with invalid state code")
	}
	return nil
}
