package objects

// Kind names the visual archetype of a shared object.
type Kind string

// Plain shapes.
const (
	KindOrb      Kind = "orb"
	KindTriangle Kind = "triangle"
	KindDiamond  Kind = "diamond"
)

// Glyph variants.
const (
	KindGlyphCircle   Kind = "glyph-circle"
	KindGlyphTriangle Kind = "glyph-triangle"
	KindGlyphDiamond  Kind = "glyph-diamond"
)

// SharedObject is a draggable element shared by everyone in the room. X and
// Y are viewport fractions; values outside [0,1] are kept as sent.
type SharedObject struct {
	ID   string  `json:"id"`
	Kind Kind    `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// DefaultLayout returns the seed layout used when nothing is persisted.
func DefaultLayout() []SharedObject {
	return []SharedObject{
		{ID: "obj1", Kind: KindOrb, X: 0.2, Y: 0.3},
		{ID: "obj2", Kind: KindTriangle, X: 0.5, Y: 0.2},
		{ID: "obj3", Kind: KindDiamond, X: 0.8, Y: 0.4},
		{ID: "obj4", Kind: KindGlyphCircle, X: 0.3, Y: 0.7},
		{ID: "obj5", Kind: KindGlyphTriangle, X: 0.6, Y: 0.6},
		{ID: "obj6", Kind: KindGlyphDiamond, X: 0.7, Y: 0.8},
		{ID: "obj7", Kind: KindOrb, X: 0.15, Y: 0.5},
		{ID: "obj8", Kind: KindTriangle, X: 0.85, Y: 0.15},
	}
}
