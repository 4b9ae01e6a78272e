package offer

import "strings"

// FilterReason classifies why an offer was discarded as synthetic.
type FilterReason string

const (
	// ReasonNone means the offer is kept
	ReasonNone FilterReason = ""
	// ReasonNoStore means the store name is absent
	ReasonNoStore FilterReason = "no_store"
	// ReasonDemoSeller means the seller name marks a demo record
	ReasonDemoSeller FilterReason = "demo_seller"
	// ReasonDemoAuctioneer means the auctioneer name marks a demo record
	ReasonDemoAuctioneer FilterReason = "demo_auctioneer"
	// ReasonDeployText means the title or description marks a deploy test
	ReasonDeployText FilterReason = "deploy_text"
)

// Classify decides whether a raw offer is a synthetic/demo artifact.
// Rules run in order, first match wins. Every field read is null-safe:
// the source is known to ship partially populated demo records.
func Classify(o *RawOffer) (bool, FilterReason) {
	if strings.TrimSpace(o.StoreName()) == "" {
		return true, ReasonNoStore
	}

	if strings.Contains(strings.ToLower(o.SellerName()), "demo") {
		return true, ReasonDemoSeller
	}

	if strings.Contains(strings.ToLower(o.Auctioneer()), "demo") {
		return true, ReasonDemoAuctioneer
	}

	title := strings.ToLower(o.Title())
	description := strings.ToLower(o.Description())
	if strings.Contains(title, "deploy") || strings.Contains(description, "deploy") {
		return true, ReasonDeployText
	}

	return false, ReasonNone
}

// FilterStats counts discarded offers per reason, plus records the
// normalizer rejected as invalid. Reported per unit and per run, never
// persisted.
type FilterStats struct {
	NoStore        int
	DemoSeller     int
	DemoAuctioneer int
	DeployText     int
	Invalid        int
}

// Count records one filtered offer.
func (s *FilterStats) Count(reason FilterReason) {
	switch reason {
	case ReasonNoStore:
		s.NoStore++
	case ReasonDemoSeller:
		s.DemoSeller++
	case ReasonDemoAuctioneer:
		s.DemoAuctioneer++
	case ReasonDeployText:
		s.DeployText++
	}
}

// Merge adds other's counters into s.
func (s *FilterStats) Merge(other FilterStats) {
	s.NoStore += other.NoStore
	s.DemoSeller += other.DemoSeller
	s.DemoAuctioneer += other.DemoAuctioneer
	s.DeployText += other.DeployText
	s.Invalid += other.Invalid
}

// Total returns the number of offers discarded by the classifier.
func (s *FilterStats) Total() int {
	return s.NoStore + s.DemoSeller + s.DemoAuctioneer + s.DeployText
}
