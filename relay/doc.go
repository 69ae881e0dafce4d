// Package relay republishes BiDi events on NATS so other processes can
// consume them.
//
// A Publisher is a bidi.Handler: subscribe it on a broker and every event it
// receives is published as a JSON envelope to "<prefix>.<method>", e.g.
// "bidi.events.log.entryAdded". Listen does the reverse and feeds envelopes
// from a NATS subject back into a bidi.Handler.
//
//	pub := relay.NATS(nc, relay.DefaultPrefix)
//	sub, err := broker.Subscribe(ctx, "log.entryAdded", pub)
//
//	// elsewhere
//	lsub, err := relay.Listen(ctx, nc, relay.DefaultPrefix+".>", handler)
//	defer lsub.Unsubscribe()
package relay
