// Package transport sends a single load-test request and reports what came back.
//
// A [Transport] turns a [Request] into a [Response] or an [*Error]. Ordinary network
// failures never escape as panics; they are classified into one of three kinds:
//   - [KindTimeout]: the per-request timeout elapsed
//   - [KindConnectionRefused]: the target could not be dialed
//   - [KindProtocol]: anything else that broke the exchange (bad handshake, reset, short body)
//
// # Implementations
//
//   - [HTTPTransport]: pooled net/http client with a per-request timeout
//   - [WebSocketTransport]: writes the request body as a text frame and waits for one reply
//
// [Traced] wraps any Transport with an OpenTelemetry client span and W3C header injection.
//
// Latency always covers send through full receipt of the response body, or time to failure.
package transport
