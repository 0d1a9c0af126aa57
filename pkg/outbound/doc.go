// Package outbound is the HTTP delivery layer behind webhook, email, and
// SMS actions. It wraps a pooled net/http client with retry, backoff, and a
// token-bucket rate limiter so rule actions cannot flood downstream systems.
package outbound
