package domain

// protectedConfigKeys lists the configuration keys whose mutation requires a
// non-empty reason before any change is applied. The set is fixed at compile
// time and never loaded from configuration itself.
var protectedConfigKeys = map[string]struct{}{
	"kdf.params_version":    {},
	"crypto.pepper":         {},
	"throttle.max_failures": {},
	"throttle.base_delay":   {},
	"throttle.max_delay":    {},
	"alerts.dispatcher":     {},
}

// IsProtectedConfigKey reports whether mutating key demands a recorded reason.
func IsProtectedConfigKey(key string) bool {
	_, ok := protectedConfigKeys[key]
	return ok
}
