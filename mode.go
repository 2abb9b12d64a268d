package modkit

import "strings"

// Mode is the deployment mode of an application.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeStaging     Mode = "staging"
	ModeTesting     Mode = "testing"
	ModeDevelopment Mode = "development"
)

// DefaultModeVariable is the environment variable read by Application.Mode
// unless WithModeVariable names another.
const DefaultModeVariable = "APP_ENV"

// ParseMode normalizes s. Unknown and empty values are development.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeProduction, ModeStaging, ModeTesting:
		return m
	default:
		return ModeDevelopment
	}
}

func (m Mode) String() string {
	return string(m)
}
