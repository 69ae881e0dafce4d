// Package wire classifies inbound BiDi frames and encodes outbound commands.
//
// Inbound frames come in three shapes:
//
//	{"type":"success","id":1,"result":{...}}
//	{"type":"error","id":1,"error":"no such frame","message":"...","stacktrace":"..."}
//	{"type":"event","method":"log.entryAdded","params":{...}}
//
// Decode turns a frame into a Message tagged with its Kind exactly once, at
// the boundary, so the receive loop can switch on the tag instead of probing
// the payload again. Payloads stay raw; decoding into caller types is
// deferred to Unmarshaler.
package wire
