// Package lock provides lock state samples of the interactive session.
// Exactly one backend is compiled in per platform:
//   - Linux: systemd-logind's LockedHint property through its D-Bus interface,
//     [org.freedesktop.login1].
//   - macOS: the CGSSessionScreenIsLocked key of CGSessionCopyCurrentDictionary,
//     polled on an interval.
//   - Windows: WM_WTSSESSION_CHANGE notifications delivered to a hidden window.
//
// [org.freedesktop.login1]: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.login1.html
package lock
