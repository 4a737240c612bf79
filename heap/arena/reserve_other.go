//go:build !unix

package arena

// reserve allocates the region on the Go heap when anonymous mmap is not
// available. The slice is never resized, so it does not move.
func reserve(limit int) ([]byte, func() error, error) {
	return make([]byte, limit), func() error { return nil }, nil
}
