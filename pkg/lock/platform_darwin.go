//go:build darwin && cgo

package lock

func newPlatformSignal(opts Options) (Signal, error) {
	return NewDictionaryPoller(opts), nil
}
