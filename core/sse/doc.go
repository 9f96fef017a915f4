// Package sse delivers server-pushed, one-way event streams to many
// concurrently connected clients and keeps working when the service is
// horizontally scaled: a client's stream terminates on exactly one instance,
// but any instance can send to any client.
//
// # Components
//
//   - Message: the immutable envelope delivered as one SSE event.
//   - Stream: the long-lived push channel for one connection, with
//     completion, timeout and error hooks and an HTTP serving loop.
//   - Registry: the per-instance map of clients to open streams,
//     latest-wins on reconnect.
//   - MessageBroker: the cross-instance directory and routing contract,
//     implemented in-process (LocalBroker) and over Redis (RedisBroker).
//   - Manager: ties them together behind one send/broadcast surface.
//
// # Usage
//
// Single instance:
//
//	manager := sse.NewManager(sse.WithLogger(log))
//
//	http.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
//		stream, err := manager.CreateStream(r.Context(), clientID(r), "connected")
//		if err != nil {
//			http.Error(w, err.Error(), http.StatusBadRequest)
//			return
//		}
//		stream.ServeHTTP(w, r)
//	})
//
//	manager.SendToClient(ctx, "client-42", "order shipped")
//	manager.Broadcast(ctx, "maintenance in 5 minutes")
//
// Multiple instances behind a load balancer share a Redis backend:
//
//	client, err := redis.Connect(ctx, cfg)
//	// ...
//	manager := sse.NewManager(
//		sse.WithBroker(sse.NewRedisBroker(client)),
//	)
//	defer manager.Shutdown(ctx)
//
// The manager behaves identically with either broker. Delivery is best
// effort, at most once: a send to an unknown client reports false and a
// message lost to a backend outage is logged, never retried.
package sse
