package auth

import (
	"crypto/subtle"
)

// DeviceAuthenticator checks the shared secret sticks send with every
// report. The secret is compared exactly; there is no per-device key.
type DeviceAuthenticator struct {
	secret []byte
}

func NewDeviceAuthenticator(secret string) *DeviceAuthenticator {
	return &DeviceAuthenticator{secret: []byte(secret)}
}

func (a *DeviceAuthenticator) Validate(apiKey string) bool {
	if len(a.secret) == 0 || apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare(a.secret, []byte(apiKey)) == 1
}
