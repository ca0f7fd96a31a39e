//go:build !windows

package engine

// NewWFP returns ErrUnsupported: the Windows Filtering Platform only exists
// on Windows. Use NewMemory to simulate it.
func NewWFP() (Engine, error) {
	return nil, ErrUnsupported
}
