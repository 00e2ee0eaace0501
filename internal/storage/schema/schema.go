// Package schema describes the relational layout shared by the SQL entity
// stores and renders the statements they run.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
)

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	Name string
	// Placeholder renders the i-th (1-based) bind parameter.
	Placeholder func(i int) string
	// IDType is the column definition of surrogate keys.
	IDType string
}

// Postgres uses $n placeholders and identity columns.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	IDType:      "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
}

// SQLite uses ? placeholders and rowid aliases.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	IDType:      "INTEGER PRIMARY KEY AUTOINCREMENT",
}

func (d Dialect) params(from, n int) string {
	out := make([]string, n)
	for i := range n {
		out[i] = d.Placeholder(from + i)
	}
	return strings.Join(out, ", ")
}

// Entity is the table holding one entity kind.
type Entity struct {
	Kind  crawler.Kind
	Table string
	// Attrs are the mutable columns, in AttrValues order.
	Attrs []string
	types []string
}

var entities = map[crawler.Kind]Entity{
	crawler.KindCity:      {Kind: crawler.KindCity, Table: "city", Attrs: []string{"display_name", "abbr"}, types: []string{"TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"}},
	crawler.KindDistrict:  {Kind: crawler.KindDistrict, Table: "district", Attrs: []string{"display_name"}, types: []string{"TEXT NOT NULL DEFAULT ''"}},
	crawler.KindLine:      {Kind: crawler.KindLine, Table: "line", Attrs: []string{"display_name"}, types: []string{"TEXT NOT NULL DEFAULT ''"}},
	crawler.KindBizcircle: {Kind: crawler.KindBizcircle, Table: "bizcircle", Attrs: []string{"display_name"}, types: []string{"TEXT NOT NULL DEFAULT ''"}},
	crawler.KindCommunity: {
		Kind:  crawler.KindCommunity,
		Table: "community",
		Attrs: []string{"display_name", "year", "price"},
		types: []string{"TEXT NOT NULL DEFAULT ''", "INTEGER NOT NULL DEFAULT 1970", "INTEGER NOT NULL DEFAULT 0"},
	},
}

// EntityFor returns the table layout of kind.
func EntityFor(kind crawler.Kind) (Entity, error) {
	e, ok := entities[kind]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	return e, nil
}

// KeyColumns are the natural-key columns.
func (e Entity) KeyColumns() []string {
	if e.Kind.Scoped() {
		return []string{"city_id", "name"}
	}
	return []string{"name"}
}

// KeyValues returns the bind values of key, in KeyColumns order.
func (e Entity) KeyValues(key crawler.Key) []any {
	if e.Kind.Scoped() {
		return []any{key.CityID, key.Name}
	}
	return []any{key.Name}
}

// AttrValues returns the bind values of a, in Attrs order.
func (e Entity) AttrValues(a crawler.Attrs) []any {
	out := make([]any, 0, len(e.Attrs))
	for _, col := range e.Attrs {
		switch col {
		case "display_name":
			out = append(out, a.DisplayName)
		case "abbr":
			out = append(out, a.Abbr)
		case "year":
			out = append(out, a.Year)
		case "price":
			out = append(out, a.Price)
		}
	}
	return out
}

// AttrTargets returns scan destinations into a, in Attrs order.
func (e Entity) AttrTargets(a *crawler.Attrs) []any {
	out := make([]any, 0, len(e.Attrs))
	for _, col := range e.Attrs {
		switch col {
		case "display_name":
			out = append(out, &a.DisplayName)
		case "abbr":
			out = append(out, &a.Abbr)
		case "year":
			out = append(out, &a.Year)
		case "price":
			out = append(out, &a.Price)
		}
	}
	return out
}

// InsertSQL inserts a row unless its natural key exists, returning the new id.
// A conflict yields no row.
func (e Entity) InsertSQL(d Dialect) string {
	cols := append(e.KeyColumns(), e.Attrs...)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING id",
		e.Table, strings.Join(cols, ", "), d.params(1, len(cols)), strings.Join(e.KeyColumns(), ", "),
	)
}

// SelectSQL reads id and attributes by natural key.
func (e Entity) SelectSQL(d Dialect) string {
	keys := e.KeyColumns()
	where := make([]string, len(keys))
	for i, k := range keys {
		where[i] = fmt.Sprintf("%s = %s", k, d.Placeholder(i+1))
	}
	return fmt.Sprintf("SELECT id, %s FROM %s WHERE %s",
		strings.Join(e.Attrs, ", "), e.Table, strings.Join(where, " AND "))
}

// UpdateSQL overwrites the attributes of a row by id; the id binds last.
func (e Entity) UpdateSQL(d Dialect) string {
	set := make([]string, len(e.Attrs))
	for i, col := range e.Attrs {
		set[i] = fmt.Sprintf("%s = %s", col, d.Placeholder(i+1))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		e.Table, strings.Join(set, ", "), d.Placeholder(len(e.Attrs)+1))
}

// CountSQL counts the rows of the table.
func (e Entity) CountSQL() string {
	return "SELECT count(*) FROM " + e.Table
}

func (e Entity) createSQL(d Dialect) string {
	cols := []string{"id " + d.IDType}
	if e.Kind.Scoped() {
		cols = append(cols, "city_id BIGINT NOT NULL REFERENCES city(id)")
	}
	cols = append(cols, "name TEXT NOT NULL")
	for i, col := range e.Attrs {
		cols = append(cols, col+" "+e.types[i])
	}
	cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(e.KeyColumns(), ", ")))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", e.Table, strings.Join(cols, ",\n\t"))
}

// Edge is the join table of one association set.
type Edge struct {
	Set    crawler.EdgeSet
	Parent string
	Child  string
	// ParentTable and ChildTable are referenced by foreign keys.
	ParentTable string
	ChildTable  string
}

var edges = map[crawler.EdgeSet]Edge{
	crawler.DistrictBizcircles:   {Set: crawler.DistrictBizcircles, Parent: "district_id", Child: "bizcircle_id", ParentTable: "district", ChildTable: "bizcircle"},
	crawler.LineBizcircles:       {Set: crawler.LineBizcircles, Parent: "line_id", Child: "bizcircle_id", ParentTable: "line", ChildTable: "bizcircle"},
	crawler.BizcircleCommunities: {Set: crawler.BizcircleCommunities, Parent: "bizcircle_id", Child: "community_id", ParentTable: "bizcircle", ChildTable: "community"},
}

// EdgeFor returns the join table of set.
func EdgeFor(set crawler.EdgeSet) (Edge, error) {
	e, ok := edges[set]
	if !ok {
		return Edge{}, fmt.Errorf("unknown edge set %q", set)
	}
	return e, nil
}

// Table is the join table name.
func (e Edge) Table() string { return string(e.Set) }

// InsertSQL inserts one edge; an existing edge is left alone.
func (e Edge) InsertSQL(d Dialect) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s) ON CONFLICT DO NOTHING",
		e.Table(), e.Parent, e.Child, d.params(1, 2))
}

// ChildrenSQL lists the children of a parent, ascending.
func (e Edge) ChildrenSQL(d Dialect) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s",
		e.Child, e.Table(), e.Parent, d.Placeholder(1), e.Child)
}

func (e Edge) createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGINT NOT NULL REFERENCES %s(id),
	%s BIGINT NOT NULL REFERENCES %s(id),
	PRIMARY KEY (%s, %s)
)`, e.Table(), e.Parent, e.ParentTable, e.Child, e.ChildTable, e.Parent, e.Child)
}

// Flat statements. Columns bind in FlatValues order.
const flatColumns = "community_id, floor, floor_total, size, rooms, bathrooms, cost, whole_rent"

// FlatValues returns the bind values of f, excluding its id.
func FlatValues(f crawler.Flat) []any {
	return []any{f.CommunityID, f.Floor, f.FloorTotal, f.Size, f.Rooms, f.Bathrooms, f.Cost, f.WholeRent}
}

// FlatTargets returns scan destinations into f, id first.
func FlatTargets(f *crawler.Flat) []any {
	return []any{&f.ID, &f.CommunityID, &f.Floor, &f.FloorTotal, &f.Size, &f.Rooms, &f.Bathrooms, &f.Cost, &f.WholeRent}
}

// InsertFlatSQL inserts a flat, returning its id.
func InsertFlatSQL(d Dialect) string {
	return fmt.Sprintf("INSERT INTO flat (%s) VALUES (%s) RETURNING id", flatColumns, d.params(1, 8))
}

// SelectFlatsSQL lists the flats of a community by id.
func SelectFlatsSQL(d Dialect) string {
	return fmt.Sprintf("SELECT id, %s FROM flat WHERE community_id = %s ORDER BY id", flatColumns, d.Placeholder(1))
}

// CreateStatements returns the DDL creating every table, parents first.
func CreateStatements(d Dialect) []string {
	out := make([]string, 0, len(entities)+len(edges)+1)
	for _, kind := range []crawler.Kind{
		crawler.KindCity, crawler.KindDistrict, crawler.KindLine, crawler.KindBizcircle, crawler.KindCommunity,
	} {
		out = append(out, entities[kind].createSQL(d))
	}
	for _, set := range []crawler.EdgeSet{
		crawler.DistrictBizcircles, crawler.LineBizcircles, crawler.BizcircleCommunities,
	} {
		out = append(out, edges[set].createSQL())
	}
	out = append(out, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS flat (
	id %s,
	community_id BIGINT NOT NULL REFERENCES community(id),
	floor INTEGER NOT NULL DEFAULT 0,
	floor_total INTEGER NOT NULL DEFAULT 0,
	size DOUBLE PRECISION NOT NULL DEFAULT 0,
	rooms INTEGER NOT NULL DEFAULT 0,
	bathrooms INTEGER NOT NULL DEFAULT 0,
	cost INTEGER NOT NULL DEFAULT 0,
	whole_rent BOOLEAN NOT NULL DEFAULT FALSE
)`, d.IDType))
	return out
}
