package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/MatthiasKunnen/screenlock/pkg/lockstate"
	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	wtsapi32 = windows.NewLazySystemDLL("wtsapi32.dll")

	procRegisterClassExW     = user32.NewProc("RegisterClassExW")
	procCreateWindowExW      = user32.NewProc("CreateWindowExW")
	procDestroyWindow        = user32.NewProc("DestroyWindow")
	procShowWindow           = user32.NewProc("ShowWindow")
	procDefWindowProcW       = user32.NewProc("DefWindowProcW")
	procGetMessageW          = user32.NewProc("GetMessageW")
	procTranslateMessage     = user32.NewProc("TranslateMessage")
	procDispatchMessageW     = user32.NewProc("DispatchMessageW")
	procPostMessageW         = user32.NewProc("PostMessageW")
	procPostQuitMessage      = user32.NewProc("PostQuitMessage")
	procWTSRegisterSession   = wtsapi32.NewProc("WTSRegisterSessionNotification")
	procWTSUnRegisterSession = wtsapi32.NewProc("WTSUnRegisterSessionNotification")

	wndProcCallback = windows.NewCallback(wndProc)
)

const (
	wmDestroy = 0x0002
	wmClose   = 0x0010

	notifyForAllSessions = 1
	swHide               = 0
	wsOverlappedWindow   = 0x00CF0000
	cwUseDefault         = 0x80000000

	sessionWindowClass = "ScreenLockSessionWatcher"
)

type wndClassEx struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   windows.Handle
	icon       windows.Handle
	cursor     windows.Handle
	background windows.Handle
	menuName   *uint16
	className  *uint16
	iconSm     windows.Handle
}

type point struct {
	x, y int32
}

type msg struct {
	hwnd    windows.HWND
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      point
	private uint32
}

type messageSignal struct {
	samples   chan lockstate.State
	done      chan struct{}
	hwnd      atomic.Uintptr
	interval  time.Duration
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewMessageSignal creates a Signal fed by WM_WTSSESSION_CHANGE notifications.
//
// A dedicated OS thread owns a hidden top-level window registered for session
// notifications of all sessions and pumps its message queue. Lock and unlock
// notifications become samples, other session changes are ignored. After every
// retrieved message the thread waits opts.Interval before pumping again.
//
// Failing to create or register the window is returned as an error. Next returns
// ErrExhausted once the message loop terminates.
func NewMessageSignal(opts Options) (Signal, error) {
	ms := &messageSignal{
		samples:  make(chan lockstate.State, 16),
		done:     make(chan struct{}),
		interval: opts.interval(),
		logger:   opts.logger(),
	}

	ready := make(chan error, 1)
	go ms.run(ready)

	if err := <-ready; err != nil {
		return nil, err
	}

	return ms, nil
}

func (ms *messageSignal) run(ready chan<- error) {
	// The window and its queue belong to this thread. The thread is never unlocked
	// and exits together with the goroutine.
	runtime.LockOSThread()
	defer close(ms.samples)

	hwnd, err := createSessionWindow()
	if err != nil {
		ready <- err
		return
	}
	ms.hwnd.Store(hwnd)
	ready <- nil

	ms.pump()
}

func createSessionWindow() (uintptr, error) {
	var instance windows.Handle
	err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &instance)
	if err != nil {
		return 0, fmt.Errorf("failed to get module handle: %w", err)
	}

	className, err := windows.UTF16PtrFromString(sessionWindowClass)
	if err != nil {
		return 0, err
	}

	wc := wndClassEx{
		wndProc:   wndProcCallback,
		instance:  instance,
		className: className,
	}
	wc.size = uint32(unsafe.Sizeof(wc))

	atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 && !errors.Is(err, windows.ERROR_CLASS_ALREADY_EXISTS) {
		return 0, fmt.Errorf("failed to register window class: %w", err)
	}

	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(className)),
		wsOverlappedWindow,
		cwUseDefault,
		cwUseDefault,
		cwUseDefault,
		cwUseDefault,
		0,
		0,
		uintptr(instance),
		0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("failed to create session window: %w", err)
	}

	procShowWindow.Call(hwnd, swHide)

	ok, _, err := procWTSRegisterSession.Call(hwnd, notifyForAllSessions)
	if ok == 0 {
		procDestroyWindow.Call(hwnd)
		return 0, fmt.Errorf("failed to register for session notifications: %w", err)
	}

	return hwnd, nil
}

// pump retrieves and dispatches every message until WM_QUIT or a GetMessageW
// failure, then waits the interval before retrieving the next one.
func (ms *messageSignal) pump() {
	var m msg
	next := func() (windowMessage, bool) {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			ms.logger.Error("GetMessageW failed, stopping session message loop", "err", err)
			return windowMessage{}, false
		case 0:
			return windowMessage{}, false
		}

		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))

		return windowMessage{message: m.message, wParam: m.wParam}, true
	}

	deliver := func(state lockstate.State) {
		select {
		case ms.samples <- state:
		case <-ms.done:
		}
	}

	pumpSessionMessages(next, deliver, func() { time.Sleep(ms.interval) })
}

func wndProc(hwnd uintptr, message uint32, wParam uintptr, lParam uintptr) uintptr {
	if message == wmDestroy {
		procWTSUnRegisterSession.Call(hwnd)
		procPostQuitMessage.Call(0)
		return 0
	}

	r, _, _ := procDefWindowProcW.Call(hwnd, uintptr(message), wParam, lParam)
	return r
}

func (ms *messageSignal) Next(ctx context.Context) (lockstate.State, error) {
	select {
	case <-ctx.Done():
		return lockstate.Unlocked, ctx.Err()
	case state, ok := <-ms.samples:
		if !ok {
			return lockstate.Unlocked, ErrExhausted
		}
		return state, nil
	}
}

// Close asks the window to close, which ends the message loop.
func (ms *messageSignal) Close() error {
	var err error
	ms.closeOnce.Do(func() {
		close(ms.done)
		r, _, postErr := procPostMessageW.Call(ms.hwnd.Load(), wmClose, 0, 0)
		if r == 0 {
			err = fmt.Errorf("failed to post WM_CLOSE: %w", postErr)
		}
	})
	return err
}
