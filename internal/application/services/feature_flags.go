package services

import "sync/atomic"

// FeatureFlags holds runtime switches of the clinical workflow
type FeatureFlags struct {
	demoMode atomic.Bool
}

// NewFeatureFlags starts with demo mode as configured
func NewFeatureFlags(demoMode bool) *FeatureFlags {
	f := &FeatureFlags{}
	f.demoMode.Store(demoMode)
	return f
}

// DemoMode forces the heuristic recommendation branch and the keyword chatbot
func (f *FeatureFlags) DemoMode() bool {
	if f == nil {
		return false
	}
	return f.demoMode.Load()
}

// SetDemoMode flips demo mode for all later requests
func (f *FeatureFlags) SetDemoMode(enabled bool) {
	f.demoMode.Store(enabled)
}
