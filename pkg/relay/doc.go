// Package relay bridges a notification bus to browser clients over
// WebSocket.
//
// Every notification published on the bus is pushed to every connected
// client as a JSON frame:
//
//	{"kind": "busy", "id": "42", "payload": true}
//	{"kind": "dropped", "id": "42", "payload": {"files": [{"name": "a.png", "type": "image/png", "size": 120}], "valid": true}}
//	{"kind": "error", "id": "42", "payload": {"status": 413, "body": "file too large"}}
//
// Clients send frames of the same shape. An upload frame triggers the
// widget with that id wherever it runs; busy, dropped, success, error and
// manual frames let a browser widget report its state to the server:
//
//	{"kind": "upload", "id": "42", "payload": {"album": "summer"}}
//
// Usage:
//
//	rl := relay.New(bus, relay.WithObserver(metrics))
//	defer rl.Close()
//	r.Handle("/ws", rl)
package relay
