package lock

import "github.com/MatthiasKunnen/screenlock/pkg/lockstate"

const wmWTSSessionChange = 0x02B1

// WM_WTSSESSION_CHANGE reason codes, see WTSRegisterSessionNotification.
const (
	wtsSessionLock   = 0x7
	wtsSessionUnlock = 0x8
)

// windowMessage holds the fields of a retrieved window message that the session
// loop reads.
type windowMessage struct {
	message uint32
	wParam  uintptr
}

// decodeSessionChange maps the wParam of a WM_WTSSESSION_CHANGE message to a sample.
// Reasons other than lock and unlock are not samples.
func decodeSessionChange(reason uintptr) (lockstate.State, bool) {
	switch reason {
	case wtsSessionLock:
		return lockstate.Locked, true
	case wtsSessionUnlock:
		return lockstate.Unlocked, true
	default:
		return lockstate.Unlocked, false
	}
}

// pumpSessionMessages handles messages from next until it reports false.
// Lock and unlock session changes are passed to deliver. wait runs after every
// message, whatever its kind.
func pumpSessionMessages(next func() (windowMessage, bool), deliver func(lockstate.State), wait func()) {
	for {
		m, ok := next()
		if !ok {
			return
		}

		if m.message == wmWTSSessionChange {
			if state, ok := decodeSessionChange(m.wParam); ok {
				deliver(state)
			}
		}

		wait()
	}
}
