package game

// Category is an entity type namespace. The numeric value is the category's
// rank when categories are packed into strided sub-ranges.
type Category uint8

const (
	CategoryAgent Category = iota
	CategoryLandform
	CategoryBeing
	CategoryItem
	CategoryResource
	CategoryBuff
	CategoryWeather
	NumCategories
)

var categoryNames = [NumCategories]string{
	"agent", "landform", "being", "item", "resource", "buff", "weather",
}

func (c Category) String() string {
	if c >= NumCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// ParseCategory maps a lower-case category name back to its Category.
func ParseCategory(s string) (Category, bool) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), true
		}
	}
	return 0, false
}

// AllCategories lists every category in rank order.
func AllCategories() []Category {
	out := make([]Category, NumCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// OverlayOrder is the order in which nearby-entity categories are written onto
// a spatial overlay. When two entities share a cell the later category wins,
// so a resource hides an item, an item hides a being and a being hides an
// agent.
var OverlayOrder = [...]Category{CategoryAgent, CategoryBeing, CategoryItem, CategoryResource}

// backendTypes is the type numbering the backend uses in result and UI
// records. It differs from the Category rank.
var backendTypes = [...]string{
	"agent", "being", "item", "resource", "buff", "weather", "landform", "attribute",
}

// BackendTypeName returns the backend's name for a result/UI type number.
func BackendTypeName(t int) (string, bool) {
	if t < 0 || t >= len(backendTypes) {
		return "", false
	}
	return backendTypes[t], true
}

// CategoryFromBackendType converts a backend type number to a Category.
// The "attribute" type has no category.
func CategoryFromBackendType(t int) (Category, bool) {
	name, ok := BackendTypeName(t)
	if !ok {
		return 0, false
	}
	return ParseCategory(name)
}
