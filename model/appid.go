package model

const FeatureAppGroups = "APG3427HIY"

const EntitlementApplicationGroups = "com.apple.security.application-groups"

type AppID struct {
	Identifier       string
	Name             string
	BundleIdentifier string
	Features         map[string]any
}

// WithFeatures returns a copy of the app id whose feature map is the current one merged with features.
func (a *AppID) WithFeatures(features map[string]any) *AppID {
	merged := make(map[string]any, len(a.Features)+len(features))
	for k, v := range a.Features {
		merged[k] = v
	}
	for k, v := range features {
		merged[k] = v
	}
	copied := *a
	copied.Features = merged
	return &copied
}

// FeatureEnabled reports the boolean value of a feature and whether the feature is present at all.
func (a *AppID) FeatureEnabled(key string) (enabled bool, present bool) {
	v, ok := a.Features[key]
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case uint64:
		return b != 0, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case string:
		return b == "true" || b == "1", true
	}
	return false, true
}

type AppGroup struct {
	Identifier      string
	GroupIdentifier string
	Name            string
}
