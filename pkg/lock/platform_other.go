//go:build !linux && !windows && !(darwin && cgo)

package lock

func newPlatformSignal(Options) (Signal, error) {
	return nil, ErrUnsupported
}
