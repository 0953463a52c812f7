package core

import "fmt"

type qosKind uint8

const (
	qosMain qosKind = iota
	qosUserInteractive
	qosUserInitiated
	qosUtility
	qosBackground
	qosCustom
)

// QoS is the quality-of-service class a task is submitted with.
//
// The set is closed: Main, UserInteractive, UserInitiated, Utility and
// Background resolve to the Dispatcher's own queues, and Custom wraps a
// caller-owned Queue. The zero value is QoSMain.
type QoS struct {
	kind  qosKind
	queue Queue
}

var (
	// QoSMain is bound to the serial main queue. Work on it must not block for
	// long: every other main-queue task waits behind it.
	QoSMain = QoS{kind: qosMain}

	// QoSUserInteractive is for work the user is actively waiting on to keep
	// the interface responsive.
	QoSUserInteractive = QoS{kind: qosUserInteractive}

	// QoSUserInitiated is for work the user started and expects results from soon.
	QoSUserInitiated = QoS{kind: qosUserInitiated}

	// QoSUtility is for long-running work with user-visible progress.
	QoSUtility = QoS{kind: qosUtility}

	// QoSBackground is for work the user does not see (prefetch, cleanup).
	QoSBackground = QoS{kind: qosBackground}
)

// Custom returns a QoS that resolves to q. It panics if q is nil.
func Custom(q Queue) QoS {
	if q == nil {
		panic("dispatch: Custom queue must not be nil")
	}
	return QoS{kind: qosCustom, queue: q}
}

// BuiltinQoS lists the built-in classes in descending priority order.
func BuiltinQoS() []QoS {
	return []QoS{QoSMain, QoSUserInteractive, QoSUserInitiated, QoSUtility, QoSBackground}
}

// IsCustom reports whether q wraps a caller-supplied queue.
func (q QoS) IsCustom() bool {
	return q.kind == qosCustom
}

// CustomQueue returns the wrapped queue of a Custom QoS, nil otherwise.
func (q QoS) CustomQueue() Queue {
	return q.queue
}

// String returns the human readable class name, e.g. "User Interactive".
func (q QoS) String() string {
	switch q.kind {
	case qosMain:
		return "Main"
	case qosUserInteractive:
		return "User Interactive"
	case qosUserInitiated:
		return "User Initiated"
	case qosUtility:
		return "Utility"
	case qosBackground:
		return "Background"
	case qosCustom:
		return fmt.Sprintf("Custom(%s)", q.queue.Label())
	default:
		return "Unknown"
	}
}

// Label returns a metrics/tracing friendly name, e.g. "user_interactive".
func (q QoS) Label() string {
	switch q.kind {
	case qosMain:
		return "main"
	case qosUserInteractive:
		return "user_interactive"
	case qosUserInitiated:
		return "user_initiated"
	case qosUtility:
		return "utility"
	case qosBackground:
		return "background"
	case qosCustom:
		return "custom"
	default:
		return "unknown"
	}
}
