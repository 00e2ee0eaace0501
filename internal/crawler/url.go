package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Site builds listing URLs for one platform.
type Site struct {
	// Platform is the second-level domain, e.g. "lianjia".
	Platform string
	// BaseURL replaces the per-city scheme and host when set (mirrors, tests).
	BaseURL string
}

// NewSite validates the platform or base URL override.
func NewSite(platform, baseURL string) (Site, error) {
	platform = strings.TrimSpace(platform)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Site{}, &ConfigurationError{Msg: fmt.Sprintf("invalid site base url %q", baseURL)}
		}
	} else if platform == "" {
		return Site{}, &ConfigurationError{Msg: "site platform is required"}
	}
	return Site{Platform: platform, BaseURL: baseURL}, nil
}

func (s Site) root(city City) string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return fmt.Sprintf("https://%s.%s.com", city.Abbr, s.Platform)
}

// DistrictListing is the page listing a city's districts.
func (s Site) DistrictListing(city City) string {
	return s.root(city) + "/zufang/"
}

// BizcircleListing is the page listing the bizcircles under a district or line.
func (s Site) BizcircleListing(city City, parentName string) string {
	return fmt.Sprintf("%s/zufang/%s/", s.root(city), url.PathEscape(parentName))
}

// CommunityListing is the first page of a bizcircle's community listing; it
// carries the pagination marker.
func (s Site) CommunityListing(city City, bizcircleName string) string {
	return fmt.Sprintf("%s/xiaoqu/%s/", s.root(city), url.PathEscape(bizcircleName))
}

// CommunityPage is page n (1-based) of a bizcircle's community listing.
func (s Site) CommunityPage(city City, bizcircleName string, n int) string {
	return fmt.Sprintf("%s/xiaoqu/%s/pg%d", s.root(city), url.PathEscape(bizcircleName), n)
}

// CommunityPages lists every page URL of a bizcircle's community listing in order.
func (s Site) CommunityPages(city City, bizcircleName string, total int) []string {
	urls := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		urls = append(urls, s.CommunityPage(city, bizcircleName, i))
	}
	return urls
}
