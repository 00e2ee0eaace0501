package extract

import "github.com/antchfx/xpath"

// Structural selectors coupled to the listing site's markup.
const (
	// DistrictsXPath selects the district links on /zufang/.
	DistrictsXPath = `//div[@id="filter"]//ul[@data-target="area"]/li[contains(@class,"filter__item--level2")]/a`
	// BizcirclesXPath selects the bizcircle links on /zufang/{district}/.
	BizcirclesXPath = `//div[@id="filter"]//ul[@data-target="area"]/li[contains(@class,"filter__item--level4")]/a`
	// CommunityPagesXPath selects the pagination box carrying page-data.
	CommunityPagesXPath = `//div[contains(@class,"house-lst-page-box")]`
	// CommunityCardsXPath selects the community listing cards.
	CommunityCardsXPath = `//ul[contains(@class,"listContent")]/li[contains(@class,"xiaoquListItem")]`

	// CardTitleXPath is relative to a card: the title link.
	CardTitleXPath = `./div[@class="info"]//div[@class="title"]/a`
	// CardPositionXPath is relative to a card: the element whose last text is the year.
	CardPositionXPath = `./div[@class="info"]//div[@class="positionInfo"]`
	// CardPriceXPath is relative to a card: the representative price.
	CardPriceXPath = `./div[contains(@class,"xiaoquListItemRight")]//div[@class="xiaoquListItemPrice"]/div[@class="totalPrice"]/span`

	// PageDataAttr holds the serialized pagination payload.
	PageDataAttr = "page-data"
)

var (
	districtsExpr      = xpath.MustCompile(DistrictsXPath)
	bizcirclesExpr     = xpath.MustCompile(BizcirclesXPath)
	communityPagesExpr = xpath.MustCompile(CommunityPagesXPath)
	communityCardsExpr = xpath.MustCompile(CommunityCardsXPath)
	cardTitleExpr      = xpath.MustCompile(CardTitleXPath)
	cardPositionExpr   = xpath.MustCompile(CardPositionXPath)
	cardPriceExpr      = xpath.MustCompile(CardPriceXPath)
	textFragmentsExpr  = xpath.MustCompile(`.//text()`)
)
