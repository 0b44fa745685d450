package pdfexport

// Layout units are CSS pixels at 1x rasterization scale. The report root is
// always forced to PageWidth before capture so the exported document is
// independent of the viewport that happened to trigger the export.
const (
	// PageWidth is the fixed width of every report page in layout units.
	PageWidth = 1400.0

	// refPageHeight is the minimum height of a paginated page: PageWidth
	// at the A4 aspect ratio (11.69 / 8.27).
	refPageHeight = 1980.0
)

// Density selects how tightly chunks are packed onto pages.
type Density int

const (
	// DensityStandard leaves breathing room between cards and chunks and
	// paginates earlier.
	DensityStandard Density = iota
	// DensityHD packs cards edge to edge and allows much taller single
	// pages before paginating.
	DensityHD
)

func (d Density) String() string {
	if d == DensityHD {
		return "hd"
	}
	return "standard"
}

// CardGap is the horizontal gap between cards packed into the same row, and
// the vertical gap between two consecutive card rows.
func (d Density) CardGap() float64 {
	if d == DensityHD {
		return 0
	}
	return 20
}

// ChunkGap is the vertical gap between chunks that are not both card rows.
func (d Density) ChunkGap() float64 {
	if d == DensityHD {
		return 10
	}
	return 30
}

// SinglePageThreshold is the total report height, inclusive, up to which the
// whole report is emitted as one page sized to its content.
func (d Density) SinglePageThreshold() float64 {
	if d == DensityHD {
		return 8000
	}
	return 4000
}

// ParseDensity maps the dashboard's density setting to a Density. Unknown
// values fall back to standard.
func ParseDensity(s string) Density {
	if s == "hd" {
		return DensityHD
	}
	return DensityStandard
}

// Theme is the active color theme of the report being exported. It decides
// the page background fill and the safe fallback color substituted for
// unresolvable modern color functions.
type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
)

func (t Theme) String() string {
	if t == ThemeDark {
		return "dark"
	}
	return "light"
}

// ParseTheme maps the dashboard's theme setting to a Theme. Unknown values
// fall back to light.
func ParseTheme(s string) Theme {
	if s == "dark" {
		return ThemeDark
	}
	return ThemeLight
}

// Background returns the page background fill as RGB components.
func (t Theme) Background() (r, g, b int) {
	if t == ThemeDark {
		return 15, 23, 42 // slate-900
	}
	return 255, 255, 255
}

// FallbackColor is the neutral color substituted for color functions the
// rasterizer cannot render. Slate tones keep acceptable contrast against
// both card surfaces and the page background.
func (t Theme) FallbackColor() string {
	if t == ThemeDark {
		return "#94a3b8"
	}
	return "#64748b"
}
