package resolver

import (
	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
)

// Era is the visual generation of the host's notification styling.
type Era int

const (
	// EraNone leaves the icon untinted.
	EraNone Era = iota
	// EraLegacy tints the glyph with a single color filter.
	EraLegacy
	// EraModern draws a white glyph on a rounded colored badge.
	EraModern
)

func (e Era) String() string {
	switch e {
	case EraLegacy:
		return "legacy"
	case EraModern:
		return "modern"
	}
	return "none"
}

// Palette constants.
const (
	LegacyDarkTint  rules.Color = 0xFFDCDCDC
	LegacyLightTint rules.Color = 0xFF707173
	ModernDarkTint  rules.Color = 0xFFDCDCDC
	ModernLightTint rules.Color = 0xFFFFFFFF
	ModernBadgeFill rules.Color = 0xFF707173

	modernPaddingDp    = 2
	defaultFrameRadius = 3
)

// Style tells the host how to draw a decided icon. The zero value means
// the host keeps its own styling.
type Style struct {
	Era            Era         `json:"era"`
	Tint           rules.Color `json:"tint"`
	Background     rules.Color `json:"background"`
	CornerRadiusDp int         `json:"cornerRadiusDp"`
	PaddingDp      int         `json:"paddingDp"`
	ClipToOutline  bool        `json:"clipToOutline"`
}

// defaultFrame is used for full-color icons that must not be tinted.
func defaultFrame() Style {
	return Style{Era: EraNone, ClipToOutline: true, CornerRadiusDp: defaultFrameRadius}
}

// tinted computes the era styling for a monochrome glyph. Color priority is
// rule color, then the notification's native color, then the era default.
func tinted(s config.Settings, in Input, ruleColor rules.Color, hasRuleColor bool) Style {
	native := in.NativeColor
	if s.ForceSystemColor {
		hasRuleColor = false
		native = 0
	}

	pick := func(fallback rules.Color) rules.Color {
		switch {
		case hasRuleColor && ruleColor != 0:
			return ruleColor
		case native != 0:
			return native
		}
		return fallback
	}

	if s.MD3StyleEnabled {
		fill := ModernBadgeFill
		if in.AccentColor != 0 {
			fill = in.AccentColor
		}
		fg := ModernLightTint
		if in.DarkMode {
			fg = ModernDarkTint
		}
		return Style{
			Era:            EraModern,
			Tint:           fg,
			Background:     pick(fill),
			CornerRadiusDp: s.CornerRadius,
			PaddingDp:      modernPaddingDp,
		}
	}

	fallback := LegacyLightTint
	if in.DarkMode {
		fallback = LegacyDarkTint
	}
	return Style{Era: EraLegacy, Tint: pick(fallback)}
}
