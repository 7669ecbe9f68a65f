// Package bridgehttp exposes the supervised stdio JSON-RPC child as an HTTP
// service.
//
// Inbound messages are POSTed to /mcp (or /mcp/streamable) and written to
// the child's stdin; the 202 response acknowledges queueing, not delivery.
// Server-originated messages (responses and notifications alike) are
// broadcast to every subscriber on the two streaming egress transports:
//
//   - GET /mcp/stream: Server-Sent Events, one "data:" frame per message,
//     with periodic keepalive comments.
//   - GET /mcp/streamable: chunked newline-delimited JSON. Messages emitted
//     before the first subscriber attaches are buffered and replayed to it.
//
// There is no request/response correlation at this layer; clients match
// responses to requests by JSON-RPC id on their side of the stream.
//
// The handler allows all origins, methods, and headers. It is designed to
// run behind an authenticating gateway and treats every request as
// pre-authorized.
package bridgehttp
