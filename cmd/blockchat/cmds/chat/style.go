package chat

import "github.com/charmbracelet/lipgloss"

type Style struct {
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	FailedMessage    lipgloss.Style
	PendingBlock     lipgloss.Style
	FocusedBlock     lipgloss.Style
	Choice           lipgloss.Style
	Muted            lipgloss.Style
	Error            lipgloss.Style
	Input            lipgloss.Style
}

type BorderColors struct {
	Unselected string
	Selected   string
	Focused    string
	Failed     string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Unselected: "#CCCCCC",
		Selected:   "#FFB6C1", // Light pink
		Focused:    "#FFFF99", // Light yellow
		Failed:     "#E06C75",
	}

	darkModeColors := BorderColors{
		Unselected: "#444444",
		Selected:   "#DD7090", // Desaturated pink for dark mode
		Focused:    "#DDDD77", // Desaturated yellow for dark mode
		Failed:     "#BE5046",
	}

	color := func(pick func(BorderColors) string) lipgloss.AdaptiveColor {
		return lipgloss.AdaptiveColor{Light: pick(lightModeColors), Dark: pick(darkModeColors)}
	}

	return &Style{
		UserMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(color(func(c BorderColors) string { return c.Unselected })),
		AssistantMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(color(func(c BorderColors) string { return c.Selected })),
		FailedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(color(func(c BorderColors) string { return c.Failed })),
		PendingBlock: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(color(func(c BorderColors) string { return c.Unselected })),
		FocusedBlock: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(color(func(c BorderColors) string { return c.Focused })),
		Choice: lipgloss.NewStyle().Bold(true),
		Muted:  lipgloss.NewStyle().Faint(true),
		Error:  lipgloss.NewStyle().Foreground(color(func(c BorderColors) string { return c.Failed })),
		Input: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(color(func(c BorderColors) string { return c.Focused })),
	}
}
