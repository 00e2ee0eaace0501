// Package extract turns listing pages into candidate entity fields.
//
// Every function here is pure: it reads a parsed document and never touches
// the network or the store. Cosmetic fields that fail to parse fall back to
// sentinel values; a candidate whose name cannot be derived is dropped.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// UnknownYear is used when a community's construction year cannot be parsed.
const UnknownYear = 1970

const (
	nbsp       = "\u00a0"
	yearSuffix = "年建成"
)

var (
	// ErrMissingName means no natural key could be derived for a candidate.
	ErrMissingName = errors.New("missing entity name")
	// ErrNoPagination means the pagination marker is absent.
	ErrNoPagination = errors.New("pagination marker not found")
	// ErrMalformedPagination means the pagination payload could not be decoded.
	ErrMalformedPagination = errors.New("malformed pagination payload")
)

// Anchor is a district or bizcircle candidate.
type Anchor struct {
	Name        string
	DisplayName string
	Href        string
}

// CommunityCard is a community candidate read from one listing card.
type CommunityCard struct {
	Name        string
	DisplayName string
	Year        int
	Price       int
}

// Districts extracts district candidates from the /zufang/ page.
func Districts(doc *html.Node) []Anchor {
	return Anchors(doc, districtsExpr)
}

// Bizcircles extracts bizcircle candidates from a district or line page.
func Bizcircles(doc *html.Node) []Anchor {
	return Anchors(doc, bizcirclesExpr)
}

// Anchors extracts link candidates matching selector. Links carrying a rel
// attribute are cross-references, not entities, and are skipped.
func Anchors(doc *html.Node, selector *xpath.Expr) []Anchor {
	if doc == nil {
		return nil
	}
	var out []Anchor
	for _, node := range htmlquery.QuerySelectorAll(doc, selector) {
		if htmlquery.ExistsAttr(node, "rel") {
			continue
		}
		href := htmlquery.SelectAttr(node, "href")
		name, err := NameFromHref(href)
		if err != nil {
			continue
		}
		out = append(out, Anchor{
			Name:        name,
			DisplayName: strings.TrimSpace(htmlquery.InnerText(node)),
			Href:        href,
		})
	}
	return out
}

// Communities extracts community candidates from one listing page.
func Communities(doc *html.Node) []CommunityCard {
	if doc == nil {
		return nil
	}
	var out []CommunityCard
	for _, card := range htmlquery.QuerySelectorAll(doc, communityCardsExpr) {
		c, err := communityCard(card)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func communityCard(card *html.Node) (CommunityCard, error) {
	title := htmlquery.QuerySelector(card, cardTitleExpr)
	if title == nil {
		return CommunityCard{}, ErrMissingName
	}
	name, err := NameFromHref(htmlquery.SelectAttr(title, "href"))
	if err != nil {
		return CommunityCard{}, err
	}

	year := UnknownYear
	if pos := htmlquery.QuerySelector(card, cardPositionExpr); pos != nil {
		year = ParseYear(lastTextFragment(pos))
	}

	price := 0
	if p := htmlquery.QuerySelector(card, cardPriceExpr); p != nil {
		price = ParsePrice(htmlquery.InnerText(p))
	}

	return CommunityCard{
		Name:        name,
		DisplayName: strings.TrimSpace(htmlquery.InnerText(title)),
		Year:        year,
		Price:       price,
	}, nil
}

// The year sits after unrelated sibling elements inside positionInfo, so
// only the trailing text fragment is considered.
func lastTextFragment(n *html.Node) string {
	fragments := htmlquery.QuerySelectorAll(n, textFragmentsExpr)
	for i := len(fragments) - 1; i >= 0; i-- {
		if text := fragments[i].Data; strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}

// NameFromHref derives a natural key from the last non-empty path segment of href.
func NameFromHref(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrMissingName
	}
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s, nil
		}
	}
	return "", ErrMissingName
}

// ParseYear reads "… 1998年建成" as 1998, falling back to UnknownYear.
func ParseYear(text string) int {
	if i := strings.LastIndex(text, nbsp); i >= 0 {
		text = text[i+len(nbsp):]
	}
	if i := strings.Index(text, yearSuffix); i >= 0 {
		text = text[:i]
	}
	year, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return UnknownYear
	}
	return year
}

// ParsePrice reads an integer price, falling back to zero.
func ParsePrice(text string) int {
	price, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0
	}
	return price
}

type pageData struct {
	TotalPage *int `json:"totalPage"`
	CurPage   int  `json:"curPage"`
}

// TotalPages decodes the page count from the pagination marker's page-data
// attribute, e.g. {"totalPage":5,"curPage":1}.
func TotalPages(doc *html.Node) (int, error) {
	if doc == nil {
		return 0, ErrNoPagination
	}
	box := htmlquery.QuerySelector(doc, communityPagesExpr)
	if box == nil {
		return 0, ErrNoPagination
	}
	if !htmlquery.ExistsAttr(box, PageDataAttr) {
		return 0, fmt.Errorf("%w: %s attribute missing", ErrMalformedPagination, PageDataAttr)
	}
	var data pageData
	if err := json.Unmarshal([]byte(htmlquery.SelectAttr(box, PageDataAttr)), &data); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPagination, err)
	}
	if data.TotalPage == nil || *data.TotalPage < 1 {
		return 0, fmt.Errorf("%w: totalPage missing or below 1", ErrMalformedPagination)
	}
	return *data.TotalPage, nil
}
