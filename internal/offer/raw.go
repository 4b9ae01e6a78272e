package offer

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Page is the decoded body of one source results page.
type Page struct {
	Offers []RawOffer `json:"offers"`
}

// DecodePage decodes a raw page body. A body without an offers array is
// not an error; it decodes to an empty page, which ends pagination.
func DecodePage(body []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RawOffer is the source representation of one listing. Nested objects are
// pointers because demo records arrive partially populated; all reads go
// through the null-safe accessors below so downstream code never repeats
// nil guards.
type RawOffer struct {
	ID               interface{}          `json:"id"`
	LotNumber        interface{}          `json:"lotNumber"`
	QuantityInLot    interface{}          `json:"quantityInLot"`
	Visits           int                  `json:"visits"`
	TotalBids        int                  `json:"totalBids"`
	TotalBidders     int                  `json:"totalBidders"`
	EndDate          string               `json:"endDate"`
	CreateAt         string               `json:"createAt"`
	PublishedAt      string               `json:"publishedAt"`
	Seller           *RawSeller           `json:"seller"`
	Auction          *RawAuction          `json:"auction"`
	Product          *RawProduct          `json:"product"`
	Store            *RawStore            `json:"store"`
	OfferDetail      *RawOfferDetail      `json:"offerDetail"`
	OfferDescription *RawOfferDescription `json:"offerDescription"`
}

// RawSeller is the seller sub-object.
type RawSeller struct {
	Name    *string `json:"name"`
	Company *string `json:"company"`
	City    *string `json:"city"`
}

// RawAuction is the auction sub-object.
type RawAuction struct {
	Desc         *string `json:"desc"`
	Auctioneer   *string `json:"auctioneer"`
	ModalityDesc *string `json:"modalityDesc"`
}

// RawProduct is the product sub-object.
type RawProduct struct {
	ShortDesc     *string          `json:"shortDesc"`
	GalleryJSON   []RawGalleryItem `json:"galleryJson"`
	VideoURLCount int              `json:"videoUrlCount"`
}

// RawGalleryItem is one gallery entry.
type RawGalleryItem struct {
	Link *string `json:"link"`
}

// RawStore is the store sub-object.
type RawStore struct {
	Name *string `json:"name"`
}

// RawOfferDetail carries the bid values. The source emits them as numbers
// or formatted strings depending on the listing, so they stay untyped
// until the value parser runs.
type RawOfferDetail struct {
	InitialBidValue          interface{} `json:"initialBidValue"`
	InitialBidValueFormatted *string     `json:"initialBidValueFormatted"`
	CurrentMinBid            interface{} `json:"currentMinBid"`
	CurrentMinBidFormatted   *string     `json:"currentMinBidFormatted"`
	CurrentMaxBid            interface{} `json:"currentMaxBid"`
	CurrentMaxBidFormatted   *string     `json:"currentMaxBidFormatted"`
}

// RawOfferDescription nests the description text under its own key.
type RawOfferDescription struct {
	OfferDescription *string `json:"offerDescription"`
}

// OfferID returns the listing id as a string, or "" when absent.
func (o *RawOffer) OfferID() string {
	return stringifyID(o.ID)
}

// LotNumberText returns the lot number as a string, or "" when absent.
func (o *RawOffer) LotNumberText() string {
	return stringifyID(o.LotNumber)
}

// StoreName returns the store name, or "" when the store object or its
// name is missing.
func (o *RawOffer) StoreName() string {
	if o.Store == nil {
		return ""
	}
	return deref(o.Store.Name)
}

// SellerName returns the seller name, coerced to "".
func (o *RawOffer) SellerName() string {
	if o.Seller == nil {
		return ""
	}
	return deref(o.Seller.Name)
}

// SellerCompany returns the seller company, coerced to "".
func (o *RawOffer) SellerCompany() string {
	if o.Seller == nil {
		return ""
	}
	return deref(o.Seller.Company)
}

// SellerCity returns the seller's free-text location, coerced to "".
func (o *RawOffer) SellerCity() string {
	if o.Seller == nil {
		return ""
	}
	return deref(o.Seller.City)
}

// Auctioneer returns the auctioneer name, coerced to "".
func (o *RawOffer) Auctioneer() string {
	if o.Auction == nil {
		return ""
	}
	return deref(o.Auction.Auctioneer)
}

// AuctionName returns the auction description, coerced to "".
func (o *RawOffer) AuctionName() string {
	if o.Auction == nil {
		return ""
	}
	return deref(o.Auction.Desc)
}

// AuctionType returns the auction modality, coerced to "".
func (o *RawOffer) AuctionType() string {
	if o.Auction == nil {
		return ""
	}
	return deref(o.Auction.ModalityDesc)
}

// Title returns the product short description, coerced to "".
func (o *RawOffer) Title() string {
	if o.Product == nil {
		return ""
	}
	return deref(o.Product.ShortDesc)
}

// Description returns the full offer description, coerced to "".
func (o *RawOffer) Description() string {
	if o.OfferDescription == nil {
		return ""
	}
	return deref(o.OfferDescription.OfferDescription)
}

// PhotoCount returns the number of gallery entries with a link.
func (o *RawOffer) PhotoCount() int {
	if o.Product == nil {
		return 0
	}
	count := 0
	for _, item := range o.Product.GalleryJSON {
		if deref(item.Link) != "" {
			count++
		}
	}
	return count
}

// VideoCount returns the video count, coerced to 0.
func (o *RawOffer) VideoCount() int {
	if o.Product == nil {
		return 0
	}
	return o.Product.VideoURLCount
}

// Detail returns the offer detail, never nil.
func (o *RawOffer) Detail() *RawOfferDetail {
	if o.OfferDetail == nil {
		return &RawOfferDetail{}
	}
	return o.OfferDetail
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringifyID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
