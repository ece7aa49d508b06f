package util

// Ptr returns a pointer to v, for optional settings in config literals.
func Ptr[T any](v T) *T {
	return &v
}

// DerefOr returns *p, or def when p is nil.
func DerefOr[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}
