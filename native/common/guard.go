package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// Module names used with Guard.
const (
	ModuleStablecoin = "stablecoin"
	ModulePosition   = "position"
	ModuleHub        = "mintinghub"
	ModuleRoller     = "roller"
	ModuleLeadRate   = "leadrate"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	return s[module]
}
