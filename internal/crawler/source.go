package crawler

import (
	"net/http"
	"net/url"
	"strconv"

	"brleiloes/superbidworker/helpers"
)

// SourceClient builds and executes page requests against the offer-query
// API. One instance is shared by the whole run so the connection pool is
// reused; access is strictly sequential.
type SourceClient struct {
	APIURL    string
	SiteURL   string
	PageSize  int
	PortalIDs string
	TimeZone  string
	Client    *http.Client
}

// FetchPage requests one 1-based page of a category listing and returns
// the UTF-8 body and status code.
func (c *SourceClient) FetchPage(slug string, page int) ([]byte, int, error) {
	params := url.Values{}
	params.Set("urlSeo", c.SiteURL+"/categorias/"+slug)
	params.Set("locale", "pt_BR")
	params.Set("orderBy", "offerDetail.percentDiffReservedPriceOverFipePrice:asc")
	params.Set("pageNumber", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(c.PageSize))
	params.Set("portalId", c.PortalIDs)
	params.Set("preOrderBy", "orderByFirstOpenedOffersAndSecondHasPhoto")
	params.Set("requestOrigin", "marketplace")
	params.Set("searchType", "openedAll")
	params.Set("timeZoneId", c.TimeZone)

	reqURL := c.APIURL + "/seo/offers/?" + params.Encode()
	return helpers.FetchJSON(c.Client, reqURL, c.SiteURL)
}
