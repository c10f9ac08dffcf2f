package ratelimit

import "github.com/MrEthical07/authstate/internal"

// APIKeyKey derives a limiter key from a presented credential without
// retaining the credential itself.
func APIKeyKey(credential string) string {
	return "api_key:" + internal.Fingerprint(credential)
}

// IPKey derives a limiter key from a client address.
func IPKey(ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
