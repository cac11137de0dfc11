package format

// DerefString dereferences s or returns def when s is nil.
func DerefString(s *string, def string) string {
	if s != nil {
		return *s
	}
	return def
}
