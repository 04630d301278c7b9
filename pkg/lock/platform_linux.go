package lock

func newPlatformSignal(opts Options) (Signal, error) {
	return NewDbusSignal(opts)
}
