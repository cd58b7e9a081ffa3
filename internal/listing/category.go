package listing

import "fmt"

// Time is the sort window for a Category of kind Sort.
type Time int

const (
	Hour Time = iota
	Day
	Week
	Month
	Year
	All
)

func (t Time) tag() string {
	switch t {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	case All:
		return "all"
	default:
		return "day"
	}
}

// Kind enumerates the category shapes a Community can be listed under.
type Kind int

const (
	Hot Kind = iota
	New
	Rising
	Sort
	Random
)

// Category is one of {hot, new, rising, sort(time), random}. Random does
// not paginate.
type Category struct {
	kind Kind
	time Time // only meaningful when kind == Sort
}

func NewHot() Category    { return Category{kind: Hot} }
func NewNew() Category    { return Category{kind: New} }
func NewRising() Category { return Category{kind: Rising} }
func NewRandom() Category { return Category{kind: Random} }
func NewSort(t Time) Category {
	return Category{kind: Sort, time: t}
}

func (c Category) Kind() Kind { return c.kind }

func (c Category) Paginates() bool { return c.kind != Random }

// WireTag is the literal category_tag segment the upstream listing API's
// endpoint path expects: one of {hot,new,rising,sort,random}. For Sort
// categories this is always the fixed literal "sort" — the specific time
// window is not part of this path segment.
func (c Category) WireTag() string {
	switch c.kind {
	case Hot:
		return "hot"
	case New:
		return "new"
	case Rising:
		return "rising"
	case Sort:
		return "sort"
	case Random:
		return "random"
	default:
		return "new"
	}
}

// PersistTag is the category_tag persisted on a Subscription Record. Unlike
// WireTag, a Sort category is recorded as its specific time window
// ("week", "month", ...) so ListSubscriptions can rebuild the exact
// descriptor a restored subscription had before restart.
func (c Category) PersistTag() string {
	switch c.kind {
	case Sort:
		return c.time.tag()
	default:
		return c.WireTag()
	}
}

// ParseCategory parses a command-surface token ("hot", "new", "rising",
// "random", or "top"/"controversial"-style sort windows such as "week")
// into a Category. Unknown tokens are rejected.
func ParseCategory(token string) (Category, error) {
	switch token {
	case "hot":
		return NewHot(), nil
	case "new":
		return NewNew(), nil
	case "rising":
		return NewRising(), nil
	case "random":
		return NewRandom(), nil
	case "hour":
		return NewSort(Hour), nil
	case "day":
		return NewSort(Day), nil
	case "week":
		return NewSort(Week), nil
	case "month":
		return NewSort(Month), nil
	case "year":
		return NewSort(Year), nil
	case "all":
		return NewSort(All), nil
	default:
		return Category{}, fmt.Errorf("listing: unknown category %q", token)
	}
}
