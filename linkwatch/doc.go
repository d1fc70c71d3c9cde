// Package linkwatch provides a connection liveness and keep-alive engine for long-lived
// endpoints such as TCP client sockets, UDP sockets, serial ports and TCP listeners.
//
// Devices behind these endpoints are flaky: a transport may report its state unreliably, and a
// device may stay connected at the transport layer while it silently stops responding. The
// Engine fuses the two notions of "connected" into one published status per endpoint and
// reports every change exactly once through a single StatusHandler.
//
// Key Features:
//   - Dual-layer status: the transport layer (socket up or down) and the logical layer (protocol
//     evidence) are resolved to Disconnected if either is Disconnected, else Connected if either
//     is Connected.
//   - Silent-failure detection: sends are counted until inbound data arrives; passing the
//     disconnect limit reports the logical layer Disconnected.
//   - Polling: one timer per endpoint sends a keep-alive command at its own interval.
//   - Reconnection: a one-shot retry timer drives Connect after a stream client disconnects, and
//     retries StartListen of a listener until it succeeds.
//   - Idle-session eviction: a listener keeps one timer pointed at the deadline of its oldest session.
//
// Endpoint Registration:
//   - Create an Engine with `NewEngine()` and set the handler with `SetStatusHandler()`.
//   - Call `Maintain()` with a transport, its Kind and EndpointOption values.
//   - Call `Block()` to deregister an endpoint, or `Close()` to stop the engine.
//
// Usage Example:
//
//	eng := linkwatch.NewEngine(ctx, linkwatch.WithLogger(l))
//	defer eng.Close()
//
//	eng.SetStatusHandler(func(h linkwatch.Handle, status linkwatch.State) {
//	    // ... update UI, alarm, etc. ...
//	})
//
//	h, err := eng.Maintain(transport.NewTCPClient("10.0.0.5:502"), linkwatch.StreamClient,
//	    linkwatch.WithPollCommand([]byte("PING\r\n"), time.Second),
//	    linkwatch.WithDisconnectLimit(3),
//	    linkwatch.WithRetryInterval(5*time.Second),
//	)
//	if err != nil {
//	    // ... handle error ...
//	}
//
//	err = eng.Send(h, []byte("READ 1\r\n"))
package linkwatch
