package validator

import "strings"

// Connection and runtime keys accepted in every task mapping. They never
// reach the reconcilers.
var ambientKeys = map[string]bool{
	"host":                     true,
	"port":                     true,
	"username":                 true,
	"password":                 true,
	"token":                    true,
	"verify":                   true,
	"version":                  true,
	"debug":                    true,
	"validate_response_schema": true,
	"state":                    true,
	"check_mode":               true,
	"diff":                     true,
	"poll_initial_delay":       true,
	"poll_max_delay":           true,
	"poll_timeout":             true,
}

// ConnectionPrefix is the prefix playbooks put on connection keys
const ConnectionPrefix = "dnac_"

// IsAmbient reports whether key is a connection or runtime field
func IsAmbient(key string) bool {
	if ambientKeys[key] {
		return true
	}
	if bare, ok := strings.CutPrefix(key, ConnectionPrefix); ok {
		return ambientKeys[bare]
	}
	return false
}

// SplitAmbient separates task parameters from ambient fields. Prefixed
// ambient keys are returned under their bare name.
func SplitAmbient(raw map[string]interface{}) (args, ambient map[string]interface{}) {
	args = make(map[string]interface{}, len(raw))
	ambient = make(map[string]interface{})
	for k, v := range raw {
		if !IsAmbient(k) {
			args[k] = v
			continue
		}
		ambient[strings.TrimPrefix(k, ConnectionPrefix)] = v
	}
	return args, ambient
}
