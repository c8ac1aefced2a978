package playback

// NotificationKind names what changed.
type NotificationKind string

const (
	NotifyState  NotificationKind = "state"
	NotifyRate   NotificationKind = "rate"
	NotifyTick   NotificationKind = "tick"
	NotifyFrame  NotificationKind = "frame"
	NotifyReset  NotificationKind = "reset"
	NotifySchema NotificationKind = "schema"
)

// Notification is emitted by the synchronizer after every state change.
type Notification struct {
	Kind   NotificationKind `json:"kind"`
	Status Status           `json:"status"`
}

// Observer receives notifications on the dispatch goroutine and must not block.
type Observer interface {
	Notify(Notification)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Notification)

func (f ObserverFunc) Notify(n Notification) {
	if f == nil {
		return
	}
	f(n)
}
