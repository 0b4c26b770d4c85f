package resolver

import (
	"image"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
)

// Source says where the decided icon comes from.
type Source int

const (
	// SourceOriginal keeps the icon the notification arrived with.
	SourceOriginal Source = iota
	// SourceCustom uses a rule's bitmap.
	SourceCustom
	// SourcePlaceholder uses the generic placeholder glyph.
	SourcePlaceholder
	// SourceSystemDefault uses the platform's own small icon.
	SourceSystemDefault
	// SourceAppIcon uses the posting application's launcher icon.
	SourceAppIcon
)

func (s Source) String() string {
	switch s {
	case SourceCustom:
		return "custom"
	case SourcePlaceholder:
		return "placeholder"
	case SourceSystemDefault:
		return "system-default"
	case SourceAppIcon:
		return "app-icon"
	}
	return "original"
}

// Package identities of the platform itself.
const (
	SystemFrameworkPackage = "android"
	SystemUIPackage        = "com.android.systemui"
)

// Input is the per-notification data the host extracts before asking for
// a decision.
type Input struct {
	PackageName   string
	IsGrayscale   bool
	NativeColor   rules.Color
	DarkMode      bool
	AccentColor   rules.Color
	SenderPackage string
}

// Decision is the resolved icon and how to draw it.
type Decision struct {
	Source   Source
	Image    image.Image
	Color    rules.Color
	HasColor bool
	// Custom is true only when a rule supplied the icon.
	Custom bool
	Style  Style
	// Rule is the matched entry for SourceCustom.
	Rule *rules.Entry
}

// Resolver decides which icon a notification shows. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	assets *Assets
}

// New creates a resolver using the given replacement icons.
func New(assets *Assets) *Resolver {
	return &Resolver{assets: assets}
}

// Resolve applies the decision order to one notification. It never fails;
// when nothing applies the original icon is kept.
func (r *Resolver) Resolve(in Input, s config.Settings, set *rules.RuleSet) Decision {
	if !s.ModuleEnabled {
		return Decision{Source: SourceOriginal}
	}

	if isSystemIdentity(in.PackageName) && !in.IsGrayscale {
		return Decision{
			Source: SourceSystemDefault,
			Image:  r.assets.SystemDefault,
			Style:  tinted(s, in, 0, false),
		}
	}

	if s.ForceAppIcon {
		return Decision{Source: SourceAppIcon, Style: defaultFrame()}
	}

	if s.IconFixEnabled {
		if e, ok := set.Match(in.PackageName); ok && (!in.IsGrayscale || e.IsEnabledAll) {
			return Decision{
				Source:   SourceCustom,
				Image:    e.Icon,
				Color:    e.IconColor,
				HasColor: e.HasIconColor,
				Custom:   true,
				Style:    tinted(s, in, e.IconColor, e.HasIconColor),
				Rule:     &e,
			}
		}

		if !in.IsGrayscale && s.PlaceholderEnabled {
			return Decision{Source: SourcePlaceholder, Image: r.assets.Placeholder}
		}
	}

	if in.IsGrayscale {
		return Decision{Source: SourceOriginal, Style: tinted(s, in, 0, false)}
	}
	if in.SenderPackage == SystemFrameworkPackage && in.SenderPackage != in.PackageName {
		return Decision{Source: SourceAppIcon, Style: defaultFrame()}
	}
	return Decision{Source: SourceOriginal, Style: defaultFrame()}
}

func isSystemIdentity(pkg string) bool {
	return pkg == SystemFrameworkPackage || pkg == SystemUIPackage
}
