// Package notify is the in-process notification bus that widgets and their
// observers talk through.
//
// Notifications are addressed by a structured Key: the notification Kind plus
// the widget instance id it belongs to. Several widgets can share one bus
// without hearing each other because a subscriber only receives notifications
// for the exact key it subscribed to.
//
// # Delivery
//
// Publish runs every handler for the key synchronously, in subscription
// order, on the publishing goroutine. Taps registered with Bus.Tap run after
// the keyed handlers and see every notification regardless of key; the
// relay and the metrics observer are built on taps.
//
// # Lifetimes
//
// Subscribe returns an unsubscribe func. For a group of subscriptions that
// should end together, create a Scope and Close it when the owner goes away:
//
//	scope := bus.Scope()
//	defer scope.Close()
//
//	scope.Subscribe(notify.Key{Kind: notify.KindDropped, ID: "avatar"}, func(ev notify.Event) {
//	    // ...
//	})
//
// A Scope publishes through its parent, so a notification published on a
// scope reaches every subscriber of the bus.
//
// # Default Bus
//
// Default returns a process-wide bus. Library code never reaches for it on
// its own; it is only picked at composition points (a Coordinator or Widget
// built without an explicit bus).
package notify
