package domain

// HandleType is the data type carried by a handle
type HandleType string

const (
	HandleTypeText  HandleType = "text"
	HandleTypeImage HandleType = "image"
	HandleTypeVideo HandleType = "video"
)

// Valid reports whether t belongs to the closed set of handle types
func (t HandleType) Valid() bool {
	switch t {
	case HandleTypeText, HandleTypeImage, HandleTypeVideo:
		return true
	}
	return false
}

// Direction tells whether a handle receives or emits data
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Opposite returns the direction a connection partner must have
func (d Direction) Opposite() Direction {
	if d == DirectionInput {
		return DirectionOutput
	}
	return DirectionInput
}

// HandleSpec declares a typed connection point on a node type
type HandleSpec struct {
	ID    string     `json:"id"`
	Type  HandleType `json:"type"`
	Label string     `json:"label"`
}

// AreCompatible reports whether an output of type a may feed an input of type b.
// Types are compatible iff they are equal; there is no implicit coercion.
func AreCompatible(a, b HandleType) bool {
	return a == b
}
