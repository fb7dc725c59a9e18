// Package constants contains shared HTTP header names and
// common content type strings used across the service.
package constants

// Header names commonly used across the application.
const (
	// HeaderAccept is the HTTP "Accept" header name.
	HeaderAccept = "Accept"

	// HeaderAuthorization is the HTTP "Authorization" header name.
	HeaderAuthorization = "Authorization"

	// HeaderContentType is the HTTP "Content-Type" header name.
	HeaderContentType = "Content-Type"

	// HeaderReferer is the HTTP "Referer" header name.
	HeaderReferer = "Referer"

	// HeaderUserAgent is the HTTP "User-Agent" header name.
	HeaderUserAgent = "User-Agent"

	// HeaderXRequestID is the custom request ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderRetryAfter is the HTTP "Retry-After" header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderRateLimitLimit reports the configured request ceiling for the
	// most restrictive scope that was checked.
	HeaderRateLimitLimit = "X-Ratelimit-Limit"

	// HeaderRateLimitRemaining reports how many requests remain in the
	// current window.
	HeaderRateLimitRemaining = "X-Ratelimit-Remaining"

	// HeaderRateLimitReset reports the Unix timestamp at which the current
	// window closes.
	HeaderRateLimitReset = "X-Ratelimit-Reset"

	// HeaderCache indicates whether the response was served from the
	// response cache ("HIT") or computed by the handler ("MISS").
	HeaderCache = "X-Cache"

	// HeaderCacheKey carries the cache key the response was stored under,
	// for diagnostics.
	HeaderCacheKey = "X-Cache-Key"
)

// Common media / content types used in requests and responses.
const (
	// ContentTypeJSON represents "application/json".
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded represents
	// "application/x-www-form-urlencoded".
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"

	// ContentTypeOctetStream represents "application/octet-stream".
	ContentTypeOctetStream = "application/octet-stream"

	// ContentTypeHTMLUTF8 represents "text/html; charset=utf-8".
	ContentTypeHTMLUTF8 = "text/html; charset=utf-8"

	// ContentTypePlainUTF8 represents "text/plain; charset=utf-8".
	ContentTypePlainUTF8 = "text/plain; charset=utf-8"
)
