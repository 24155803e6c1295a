package schema

import "strings"

// DefaultTheme is the default UI theme name.
const DefaultTheme ThemeName = "light"

// Palette is the set of colours a theme assigns to UI surfaces.
type Palette struct {
	Primary            string `json:"primary"`
	Background         string `json:"background"`
	Text               string `json:"text"`
	Border             string `json:"border"`
	CellBackground     string `json:"cellBackground"`
	ToolbarBackground  string `json:"toolbarBackground"`
	ToolbarText        string `json:"toolbarText"`
	CodeBackground     string `json:"codeBackground"`
	MarkdownBackground string `json:"markdownBackground"`
	ButtonHover        string `json:"buttonHover"`
	ButtonActive       string `json:"buttonActive"`
	Selection          string `json:"selection"`
	FilePanel          string `json:"filePanel"`
	FilePanelHover     string `json:"filePanelHover"`
	FilePanelActive    string `json:"filePanelActive"`
	FilePanelText      string `json:"filePanelText"`
}

// Theme pairs a palette with its display name and editor theme.
type Theme struct {
	Name        ThemeName `json:"name"`
	DisplayName string    `json:"display_name"`
	EditorTheme string    `json:"editor_theme"`
	Colors      Palette   `json:"colors"`
}

var themes = []Theme{
	{
		Name:        "light",
		DisplayName: "Light",
		EditorTheme: "vs",
		Colors: Palette{
			Primary: "#1976D2", Background: "#f5f7fa", Text: "#2c3e50", Border: "#e0e0e0",
			CellBackground: "#ffffff", ToolbarBackground: "#1976D2", ToolbarText: "#ffffff",
			CodeBackground: "#f8f9fa", MarkdownBackground: "#ffffff", ButtonHover: "#f5f5f5",
			ButtonActive: "#e8e8e8", Selection: "#e3f2fd", FilePanel: "#ffffff",
			FilePanelHover: "#f5f7fa", FilePanelActive: "#e3f2fd", FilePanelText: "#2c3e50",
		},
	},
	{
		Name:        "dark",
		DisplayName: "Dark",
		EditorTheme: "vs-dark",
		Colors: Palette{
			Primary: "#64B5F6", Background: "#1a1a1a", Text: "#e0e0e0", Border: "#333333",
			CellBackground: "#242424", ToolbarBackground: "#1e1e1e", ToolbarText: "#e0e0e0",
			CodeBackground: "#1e1e1e", MarkdownBackground: "#242424", ButtonHover: "#2c2c2c",
			ButtonActive: "#404040", Selection: "#0d47a1", FilePanel: "#242424",
			FilePanelHover: "#2c2c2c", FilePanelActive: "#333333", FilePanelText: "#e0e0e0",
		},
	},
	{
		Name:        "sepia",
		DisplayName: "Sepia",
		EditorTheme: "vs",
		Colors: Palette{
			Primary: "#795548", Background: "#f4ecd8", Text: "#5b4636", Border: "#d7cbb5",
			CellBackground: "#fdf6e3", ToolbarBackground: "#8b6b5f", ToolbarText: "#fdf6e3",
			CodeBackground: "#eee8d5", MarkdownBackground: "#fdf6e3", ButtonHover: "#efe4cc",
			ButtonActive: "#e6d9bc", Selection: "#d7cbb5", FilePanel: "#fdf6e3",
			FilePanelHover: "#f4ecd8", FilePanelActive: "#e6d9bc", FilePanelText: "#5b4636",
		},
	},
	{
		Name:        "ocean",
		DisplayName: "Ocean",
		EditorTheme: "vs",
		Colors: Palette{
			Primary: "#006064", Background: "#e0f7fa", Text: "#00363a", Border: "#b2ebf2",
			CellBackground: "#ffffff", ToolbarBackground: "#00838f", ToolbarText: "#ffffff",
			CodeBackground: "#e0f7fa", MarkdownBackground: "#ffffff", ButtonHover: "#e0f7fa",
			ButtonActive: "#b2ebf2", Selection: "#80deea", FilePanel: "#ffffff",
			FilePanelHover: "#e0f7fa", FilePanelActive: "#b2ebf2", FilePanelText: "#00363a",
		},
	},
}

// AvailableThemes returns the supported theme names.
func AvailableThemes() []ThemeName {
	out := make([]ThemeName, 0, len(themes))
	for _, theme := range themes {
		out = append(out, theme.Name)
	}
	return out
}

// NormalizeThemeName returns a canonical theme name if supported.
func NormalizeThemeName(name string) (ThemeName, bool) {
	normalized := ThemeName(strings.ToLower(strings.TrimSpace(name)))
	for _, theme := range themes {
		if theme.Name == normalized {
			return theme.Name, true
		}
	}
	return "", false
}

// LookupTheme returns the theme called name.
// Unknown names fall back to the default palette and report false.
func LookupTheme(name ThemeName) (Theme, bool) {
	for _, theme := range themes {
		if theme.Name == name {
			return theme, true
		}
	}
	return themes[0], false
}

// Themes returns every supported theme in display order.
func Themes() []Theme {
	return append([]Theme(nil), themes...)
}
