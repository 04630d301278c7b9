//go:build darwin && cgo

package lock

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>

// Returns 1 when the lock key is present, 0 when absent and -1 when the session
// dictionary is unavailable. The dictionary is released on every call.
static int session_screen_is_locked() {
    CFDictionaryRef dict = CGSessionCopyCurrentDictionary();
    if (!dict) return -1;

    int present = CFDictionaryContainsKey(dict, CFSTR("CGSSessionScreenIsLocked")) ? 1 : 0;

    CFRelease(dict);
    return present;
}
*/
import "C"
import "errors"

var errNoSessionDictionary = errors.New("CGSessionCopyCurrentDictionary returned NULL")

// NewDictionaryPoller creates a Signal that polls the CGSSessionScreenIsLocked key of
// the current session dictionary once per opts.Interval. The session is locked when
// the key is present. macOS offers no change notification for this value.
func NewDictionaryPoller(opts Options) Signal {
	return NewPoller(querySessionDictionary, opts.interval())
}

func querySessionDictionary() (bool, error) {
	switch C.session_screen_is_locked() {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, errNoSessionDictionary
	}
}
