// Package remote defines the key-value contract the controller relies on and
// the clients that keep remote calls off the control path.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Keys of the remote store.
const (
	KeyDesiredHumidity  = "desiredHumidity"
	KeyActiveTime       = "activeTime"
	KeyIdleTime         = "idleTime"
	KeyRelay            = "relay"
	KeyCurrentDateTime  = "currentDateTime"
	KeyCount            = "_count"
	KeyVoltageSensor    = "voltageSensor"
	KeyRelativeHumidity = "relativeHumidity"
	KeyStatus           = "status"

	HistoryPrefix = "history"
)

// ConfigKeys are pulled on every config cadence.
var ConfigKeys = []string{KeyDesiredHumidity, KeyActiveTime, KeyIdleTime}

// HistoryKey returns the time-series key for a sample taken at t.
func HistoryKey(t time.Time) string {
	return HistoryPrefix + "/" + t.Format("2006-01-02") + "/" + t.Format("15:04:05")
}

var (
	// ErrNotConnected is returned when the store has no live session.
	ErrNotConnected = errors.New("remote: not connected")
	// ErrNoValue is returned for a key the store holds no value for.
	ErrNoValue = errors.New("remote: no value")
	// ErrTimeout is returned when an operation does not complete in time.
	ErrTimeout = errors.New("remote: timeout")
	// ErrType is returned when a stored value does not have the expected type.
	ErrType = errors.New("remote: unexpected value type")
)

// Value is a statically typed remote value.
type Value interface {
	// Encode returns the wire form of the value.
	Encode() []byte
	isValue()
}

// Bool is a boolean value.
type Bool bool

// Int is an integer value.
type Int int64

// Float is a floating point value.
type Float float64

// String is a text value.
type String string

func (v Bool) Encode() []byte   { return strconv.AppendBool(nil, bool(v)) }
func (v Int) Encode() []byte    { return strconv.AppendInt(nil, int64(v), 10) }
func (v Float) Encode() []byte  { return strconv.AppendFloat(nil, float64(v), 'f', -1, 64) }
func (v String) Encode() []byte { return []byte(v) }

func (Bool) isValue()   {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (String) isValue() {}

// Entry is one key/value to push.
type Entry struct {
	Key   string
	Value Value
}

// Field is the result of pulling one integer key. Err is nil on success.
type Field struct {
	Key   string
	Value int
	Err   error
}

// ParseInt decodes an integer payload. Integral decimals such as "40.0" are
// accepted because some dashboards only write numbers as floats.
func ParseInt(payload []byte) (int, error) {
	s := string(payload)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrType, s)
	}
	return int(f), nil
}

// Store is a remote key-value store. Implementations may block for the
// duration of a network round trip.
type Store interface {
	// Pull fetches integer keys. Each key succeeds or fails independently;
	// the result has one Field per requested key, in order.
	Pull(ctx context.Context, keys ...string) []Field

	// Push writes entries. The result has one error (or nil) per entry.
	Push(ctx context.Context, entries ...Entry) []error

	// Close releases the session.
	Close() error
}

// Client is the non-blocking view of a Store used by the control loop.
type Client interface {
	// RequestPull asks for keys to be pulled. The result is collected
	// later with Pulled.
	RequestPull(keys ...string)

	// Pulled returns the result of a completed pull, at most once.
	Pulled() ([]Field, bool)

	// Push sends entries. Failures are logged and counted, never returned.
	Push(entries ...Entry)
}

// Op names a remote operation for result reporting.
type Op string

const (
	OpPull Op = "pull"
	OpPush Op = "push"
)

// ResultFunc observes the outcome of each key of each remote operation.
type ResultFunc func(op Op, key string, err error)
