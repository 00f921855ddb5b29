package channel

// Item is a channel element that is either a payload value or an
// end-of-stream marker. Markers tell a consumer to stop pulling; they are
// distinct from every payload, including zero values.
type Item[T any] struct {
	value T
	eos   bool
}

// Payload wraps v as a payload item.
func Payload[T any](v T) Item[T] {
	return Item[T]{value: v}
}

// EndOfStream returns an end-of-stream marker.
func EndOfStream[T any]() Item[T] {
	return Item[T]{eos: true}
}

// IsEndOfStream reports whether the item is a marker.
func (i Item[T]) IsEndOfStream() bool {
	return i.eos
}

// Value returns the payload. It is the zero value for markers.
func (i Item[T]) Value() T {
	return i.value
}
