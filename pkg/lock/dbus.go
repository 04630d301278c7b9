package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/MatthiasKunnen/screenlock/pkg/lockstate"
	"github.com/godbus/dbus/v5"
)

const (
	dbusDest                = "org.freedesktop.login1"
	dbusPath                = "/org/freedesktop/login1"
	dbusManagerInterface    = "org.freedesktop.login1.Manager"
	dbusSessionInterface    = "org.freedesktop.login1.Session"
	dbusPropertiesInterface = "org.freedesktop.DBus.Properties"
	dbusAutoSessionPath     = "/org/freedesktop/login1/session/auto"

	lockedHintProperty = "LockedHint"
)

type dbusSignal struct {
	conn               *dbus.Conn
	login1             dbus.BusObject
	loginSessionObject dbus.BusObject
	logger             *slog.Logger
	signals            chan *dbus.Signal
	closeOnce          sync.Once
	closeErr           error

	// pending holds samples decoded but not yet returned by Next.
	// Only accessed from the goroutine calling Next.
	pending []bool
}

// NewDbusSignal creates a Signal backed by the LockedHint property of a
// [org.freedesktop.login1] session on the system bus.
//
// The session is opts.SessionID, or XDG_SESSION_ID when empty, or logind's "auto"
// session when both are empty. The current LockedHint is the first sample. After
// that, a sample is produced for every PropertiesChanged signal that reports
// LockedHint and whenever the system resumes from sleep. Signals are queued in the
// order they arrive on the bus, however slowly Next is called.
//
// Failing to connect or to find the session is returned as an error. Once the bus
// connection is lost Next returns ErrExhausted.
//
// [org.freedesktop.login1]: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.login1.html
func NewDbusSignal(opts Options) (Signal, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithSignalHandler(newSignalHandler()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	sessionPath, err := resolveSessionPath(conn, opts.SessionID)
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	result := &dbusSignal{
		conn:               conn,
		login1:             conn.Object(dbusDest, dbusPath),
		loginSessionObject: conn.Object(dbusDest, sessionPath),
		logger:             opts.logger().With("session_path", string(sessionPath)),
		signals:            make(chan *dbus.Signal, 16),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface(dbusPropertiesInterface),
		dbus.WithMatchSender(dbusDest),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to register Dbus signal for LockedHint: %w", err),
			conn.Close(),
		)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusPath),
		dbus.WithMatchInterface(dbusManagerInterface),
		dbus.WithMatchSender(dbusDest),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to register Dbus PrepareForSleep signal: %w", err),
			conn.Close(),
		)
	}

	// Subscribe before the initial read so no change can slip in between.
	conn.Signal(result.signals)

	locked, err := result.getLocked()
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}
	result.pending = append(result.pending, locked)

	return result, nil
}

// newSignalHandler returns a handler that writes signals to subscribed channels in
// bus order. The default handler spawns a goroutine per signal once a channel is
// full, which loses that order.
func newSignalHandler() dbus.SignalHandler {
	return dbus.NewSequentialSignalHandler()
}

// resolveSessionPath finds the object path of the logind session with the given ID.
func resolveSessionPath(conn *dbus.Conn, sessionID string) (dbus.ObjectPath, error) {
	if sessionID == "" {
		sessionID = os.Getenv("XDG_SESSION_ID")
	}

	if sessionID == "" {
		variant, err := conn.Object(dbusDest, dbusAutoSessionPath).
			GetProperty(dbusSessionInterface + ".Id")
		if err != nil {
			return "", fmt.Errorf("failed to resolve auto session: %w", err)
		}

		id, ok := variant.Value().(string)
		if !ok || id == "" {
			return "", fmt.Errorf("auto session Id is not a string: %v", variant)
		}
		sessionID = id
	}

	var sessions []interface{}
	err := conn.Object(dbusDest, dbusPath).
		Call(dbusManagerInterface+".ListSessions", 0).
		Store(&sessions)
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}

	return findSessionPath(sessions, sessionID)
}

// findSessionPath looks up sessionID in the result of ListSessions, an array of
// (session id, user id, user name, seat id, session object path).
func findSessionPath(sessions []interface{}, sessionID string) (dbus.ObjectPath, error) {
	for i, sessionInt := range sessions {
		session, ok := sessionInt.([]interface{})
		if !ok || len(session) < 5 {
			return "", fmt.Errorf("session %d is not a session struct: %+v", i, sessionInt)
		}

		currentSessionId, ok := session[0].(string)
		if !ok {
			return "", fmt.Errorf("session %d[0] is not a string: %+v", i, session[0])
		}

		if currentSessionId != sessionID {
			continue
		}

		sessionPath, ok := session[4].(dbus.ObjectPath)
		if !ok {
			return "", fmt.Errorf("session %d[4] is not an ObjectPath: %+v", i, session[4])
		}

		return sessionPath, nil
	}

	return "", fmt.Errorf("failed to find session object for session %q", sessionID)
}

func (dc *dbusSignal) Next(ctx context.Context) (lockstate.State, error) {
	for {
		if len(dc.pending) > 0 {
			locked := dc.pending[0]
			dc.pending = dc.pending[1:]
			return lockstate.FromLocked(locked), nil
		}

		select {
		case <-ctx.Done():
			return lockstate.Unlocked, ctx.Err()
		case s, ok := <-dc.signals:
			if !ok {
				return lockstate.Unlocked, ErrExhausted
			}
			dc.handleIncomingSignal(s)
		}
	}
}

func (dc *dbusSignal) getLocked() (bool, error) {
	variant, err := dc.loginSessionObject.GetProperty(dbusSessionInterface + "." + lockedHintProperty)
	if err != nil {
		return false, fmt.Errorf("could not get locked hint: %w", err)
	}

	lockedHint, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("LockedHint property result is not a boolean")
	}

	return lockedHint, nil
}

// refetch reads LockedHint and queues it. Failures are logged and skipped.
func (dc *dbusSignal) refetch(reason string) {
	locked, err := dc.getLocked()
	if err != nil {
		dc.logger.Warn("failed to refresh locked hint", "reason", reason, "err", err)
		return
	}
	dc.pending = append(dc.pending, locked)
}

func (dc *dbusSignal) handleIncomingSignal(s *dbus.Signal) {
	if s == nil {
		return
	}

	switch s.Name {
	case dbusPropertiesInterface + ".PropertiesChanged":
		if s.Path != dc.loginSessionObject.Path() {
			return
		}

		update, locked, err := parseLockedHint(s.Body)
		if err != nil {
			dc.logger.Warn("ignoring malformed PropertiesChanged signal", "err", err)
			return
		}

		switch update {
		case propertyChanged:
			dc.pending = append(dc.pending, locked)
		case propertyInvalidated:
			dc.refetch("invalidated")
		}
	case dbusManagerInterface + ".PrepareForSleep":
		if s.Path != dc.login1.Path() || len(s.Body) == 0 {
			return
		}

		goingToSleep, ok := s.Body[0].(bool)
		if !ok {
			dc.logger.Warn("PrepareForSleep signal body[0] is not a boolean", "body", s.Body)
			return
		}

		if !goingToSleep {
			dc.refetch("resume")
		}
	}
}

type propertyUpdate int

const (
	propertyAbsent propertyUpdate = iota
	propertyChanged
	propertyInvalidated
)

// parseLockedHint decodes the body of a PropertiesChanged signal, which is
// (interface name, changed properties, invalidated property names).
func parseLockedHint(body []interface{}) (propertyUpdate, bool, error) {
	if len(body) < 2 {
		return propertyAbsent, false, fmt.Errorf("expected at least 2 body fields, got %d", len(body))
	}

	if iface, ok := body[0].(string); !ok || iface != dbusSessionInterface {
		return propertyAbsent, false, nil
	}

	changedProperties, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return propertyAbsent, false, fmt.Errorf("changed properties is not a map: %T", body[1])
	}

	if variant, hasLockedHint := changedProperties[lockedHintProperty]; hasLockedHint {
		isLocked, ok := variant.Value().(bool)
		if !ok {
			return propertyAbsent, false, fmt.Errorf("LockedHint is not a boolean: %v", variant)
		}
		return propertyChanged, isLocked, nil
	}

	if len(body) > 2 {
		if invalidated, ok := body[2].([]string); ok && slices.Contains(invalidated, lockedHintProperty) {
			return propertyInvalidated, false, nil
		}
	}

	return propertyAbsent, false, nil
}

// Close drops the signal subscriptions and closes the bus connection.
// Next returns ErrExhausted afterward.
func (dc *dbusSignal) Close() error {
	dc.closeOnce.Do(func() {
		var err error

		err = errors.Join(err, dc.conn.RemoveMatchSignal(
			dbus.WithMatchObjectPath(dc.loginSessionObject.Path()),
			dbus.WithMatchInterface(dbusPropertiesInterface),
			dbus.WithMatchSender(dbusDest),
			dbus.WithMatchMember("PropertiesChanged"),
		))
		err = errors.Join(err, dc.conn.RemoveMatchSignal(
			dbus.WithMatchObjectPath(dbusPath),
			dbus.WithMatchInterface(dbusManagerInterface),
			dbus.WithMatchSender(dbusDest),
			dbus.WithMatchMember("PrepareForSleep"),
		))
		err = errors.Join(err, dc.conn.Close())

		dc.closeErr = err
	})

	return dc.closeErr
}
