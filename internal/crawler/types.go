// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Kind names an entity type held by the EntityStore.
type Kind string

// Entity kinds persisted in the store.
const (
	KindCity      Kind = "city"
	KindDistrict  Kind = "district"
	KindLine      Kind = "line"
	KindBizcircle Kind = "bizcircle"
	KindCommunity Kind = "community"
)

// Scoped reports whether the kind's natural key includes the owning city.
func (k Kind) Scoped() bool {
	switch k {
	case KindDistrict, KindLine, KindBizcircle, KindCommunity:
		return true
	default:
		return false
	}
}

// Key is the natural key of a stored entity. CityID is zero for cities.
type Key struct {
	Kind   Kind
	CityID int64
	Name   string
}

// CityKey builds the natural key of a city.
func CityKey(name string) Key {
	return Key{Kind: KindCity, Name: name}
}

// DistrictKey builds the natural key of a district.
func DistrictKey(cityID int64, name string) Key {
	return Key{Kind: KindDistrict, CityID: cityID, Name: name}
}

// LineKey builds the natural key of a transit line.
func LineKey(cityID int64, name string) Key {
	return Key{Kind: KindLine, CityID: cityID, Name: name}
}

// BizcircleKey builds the natural key of a bizcircle.
func BizcircleKey(cityID int64, name string) Key {
	return Key{Kind: KindBizcircle, CityID: cityID, Name: name}
}

// CommunityKey builds the natural key of a community.
func CommunityKey(cityID int64, name string) Key {
	return Key{Kind: KindCommunity, CityID: cityID, Name: name}
}

// Validate rejects keys no store should ever see.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return fmt.Errorf("%s key: name is required", k.Kind)
	}
	switch {
	case k.Kind == KindCity:
		if k.CityID != 0 {
			return fmt.Errorf("city key: city id must be zero, got %d", k.CityID)
		}
	case k.Kind.Scoped():
		if k.CityID <= 0 {
			return fmt.Errorf("%s key: city id is required", k.Kind)
		}
	default:
		return fmt.Errorf("unknown entity kind %q", k.Kind)
	}
	return nil
}

func (k Key) String() string {
	if k.Kind == KindCity {
		return fmt.Sprintf("%s(%s)", k.Kind, k.Name)
	}
	return fmt.Sprintf("%s(%d/%s)", k.Kind, k.CityID, k.Name)
}

// Attrs holds the mutable, non-key attributes of an entity.
// Abbr applies to cities, Year and Price to communities.
type Attrs struct {
	DisplayName string
	Abbr        string
	Year        int
	Price       int
}

// Row is the stored form of an entity.
type Row struct {
	ID    int64
	Key   Key
	Attrs Attrs
}

// City is the root of the hierarchy.
type City struct {
	ID          int64
	Name        string
	DisplayName string
	Abbr        string
}

// Key returns the city's natural key.
func (c City) Key() Key { return CityKey(c.Name) }

// CityFromRow converts a stored row.
func CityFromRow(r Row) City {
	return City{ID: r.ID, Name: r.Key.Name, DisplayName: r.Attrs.DisplayName, Abbr: r.Attrs.Abbr}
}

// District is an administrative district of a city.
type District struct {
	ID          int64
	CityID      int64
	Name        string
	DisplayName string
}

// Key returns the district's natural key.
func (d District) Key() Key { return DistrictKey(d.CityID, d.Name) }

// DistrictFromRow converts a stored row.
func DistrictFromRow(r Row) District {
	return District{ID: r.ID, CityID: r.Key.CityID, Name: r.Key.Name, DisplayName: r.Attrs.DisplayName}
}

// Line is a transit line; an alternate parent of bizcircles.
type Line struct {
	ID          int64
	CityID      int64
	Name        string
	DisplayName string
}

// Key returns the line's natural key.
func (l Line) Key() Key { return LineKey(l.CityID, l.Name) }

// LineFromRow converts a stored row.
func LineFromRow(r Row) Line {
	return Line{ID: r.ID, CityID: r.Key.CityID, Name: r.Key.Name, DisplayName: r.Attrs.DisplayName}
}

// Bizcircle is a business zone grouping communities.
type Bizcircle struct {
	ID          int64
	CityID      int64
	Name        string
	DisplayName string
}

// Key returns the bizcircle's natural key.
func (b Bizcircle) Key() Key { return BizcircleKey(b.CityID, b.Name) }

// BizcircleFromRow converts a stored row.
func BizcircleFromRow(r Row) Bizcircle {
	return Bizcircle{ID: r.ID, CityID: r.Key.CityID, Name: r.Key.Name, DisplayName: r.Attrs.DisplayName}
}

// Community is a residential community listed under one or more bizcircles.
type Community struct {
	ID          int64
	CityID      int64
	Name        string
	DisplayName string
	Year        int
	Price       int
}

// Key returns the community's natural key.
func (c Community) Key() Key { return CommunityKey(c.CityID, c.Name) }

// Attrs returns the community's non-key attributes.
func (c Community) Attrs() Attrs {
	return Attrs{DisplayName: c.DisplayName, Year: c.Year, Price: c.Price}
}

// CommunityFromRow converts a stored row.
func CommunityFromRow(r Row) Community {
	return Community{
		ID:          r.ID,
		CityID:      r.Key.CityID,
		Name:        r.Key.Name,
		DisplayName: r.Attrs.DisplayName,
		Year:        r.Attrs.Year,
		Price:       r.Attrs.Price,
	}
}

// Flat is a rentable unit owned by exactly one community.
type Flat struct {
	ID          int64
	CommunityID int64
	Floor       int
	FloorTotal  int
	Size        float64
	Rooms       int
	Bathrooms   int
	Cost        int
	WholeRent   bool
}

// EdgeSet names one of the many-to-many association sets.
type EdgeSet string

// Association sets. Parent ids come first in every edge.
const (
	DistrictBizcircles   EdgeSet = "bizcircle_district"
	LineBizcircles       EdgeSet = "bizcircle_line"
	BizcircleCommunities EdgeSet = "community_bizcircle"
)

// Validate rejects unknown edge sets.
func (s EdgeSet) Validate() error {
	switch s {
	case DistrictBizcircles, LineBizcircles, BizcircleCommunities:
		return nil
	default:
		return fmt.Errorf("unknown edge set %q", s)
	}
}

// ParentKind discriminates the Parent variant.
type ParentKind int

// Bizcircle parent variants.
const (
	ParentDistrict ParentKind = iota + 1
	ParentLine
)

func (k ParentKind) String() string {
	switch k {
	case ParentDistrict:
		return "district"
	case ParentLine:
		return "line"
	default:
		return fmt.Sprintf("parent(%d)", int(k))
	}
}

// Parent is a resolved district or line that bizcircles hang under.
type Parent struct {
	Kind   ParentKind
	ID     int64
	CityID int64
	Name   string
}

// DistrictParent wraps a district as a bizcircle parent.
func DistrictParent(d District) Parent {
	return Parent{Kind: ParentDistrict, ID: d.ID, CityID: d.CityID, Name: d.Name}
}

// LineParent wraps a line as a bizcircle parent.
func LineParent(l Line) Parent {
	return Parent{Kind: ParentLine, ID: l.ID, CityID: l.CityID, Name: l.Name}
}

// EdgeSet returns the association set linking this parent to its bizcircles.
func (p Parent) EdgeSet() (EdgeSet, error) {
	switch p.Kind {
	case ParentDistrict:
		return DistrictBizcircles, nil
	case ParentLine:
		return LineBizcircles, nil
	default:
		return "", &ConfigurationError{Msg: fmt.Sprintf("parent must be a district or line, got %s", p.Kind)}
	}
}

// PageFailure records one page that did not contribute results.
type PageFailure struct {
	URL string
	Err error
}

// WalkSummary reports the outcome of one hierarchy walk.
type WalkSummary struct {
	RunID             string    `json:"run_id"`
	City              string    `json:"city"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Districts         int       `json:"districts"`
	Bizcircles        int       `json:"bizcircles"`
	Communities       int       `json:"communities"`
	CommunitiesNew    int       `json:"communities_created"`
	PagesTotal        int       `json:"pages_total"`
	PagesFailed       int       `json:"pages_failed"`
	FailedURLs        []string  `json:"failed_urls,omitempty"`
	BizcirclesSkipped int       `json:"bizcircles_skipped"`
}
