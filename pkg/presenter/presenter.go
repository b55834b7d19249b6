// Package presenter provides consistent CLI output functionality for user-facing messages,
// including success, error, warning, and informational output with color support and quiet mode,
// and renders skills as terminal cards.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/jingkaihe/skillgarden/pkg/cache"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Separator()
	SkillCard(skill *skills.Skill, showContent bool)
	SkillList(resp *skills.SearchResponse, showContent bool)
	CacheStats(stats cache.Stats)
	Sources(sources []skills.SourceInfo)
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
	styles      cardStyles
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto automatically detects whether to use colored output based on terminal capabilities
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output regardless of terminal capabilities
	ColorAlways
	// ColorNever disables colored output regardless of terminal capabilities
	ColorNever
)

// ColorEnv overrides color detection: always/force, never/off or auto
const ColorEnv = "SKILLGARDEN_COLOR"

const cardWidth = 78

type cardStyles struct {
	border lipgloss.Style
	title  lipgloss.Style
	meta   lipgloss.Style
	score  lipgloss.Style
	errMsg lipgloss.Style
}

func newCardStyles(plain bool) cardStyles {
	if plain {
		base := lipgloss.NewStyle()
		return cardStyles{
			border: base.Border(lipgloss.NormalBorder()).Padding(0, 1).Width(cardWidth),
			title:  base,
			meta:   base,
			score:  base,
			errMsg: base,
		}
	}
	return cardStyles{
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#7aa2f7", Dark: "#7aa2f7"}).
			Padding(0, 1).
			Width(cardWidth),
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#7aa2f7", Dark: "#7aa2f7"}),
		meta:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#565f89", Dark: "#a9b1d6"}),
		score:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9ece6a", Dark: "#9ece6a"}),
		errMsg: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f7768e", Dark: "#f7768e"}),
	}
}

// New creates a new TerminalPresenter with default settings
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom settings
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	presenter := &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}

	// Configure color package based on mode
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
		// Let color package auto-detect
	}
	presenter.styles = newCardStyles(color.NoColor)

	return presenter
}

// detectColorMode determines the appropriate color mode based on environment
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv(ColorEnv) {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}

	successColor := color.New(color.FgGreen, color.Bold)
	successColor.Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}

	warningColor := color.New(color.FgYellow, color.Bold)
	warningColor.Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}

	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header with consistent formatting
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Separator displays a visual separator
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}

	separatorColor := color.New(color.Faint)
	separatorColor.Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SkillCard renders one skill as a bordered card. The document body is
// printed below the card when showContent is set. Cards are primary output
// and ignore quiet mode.
func (p *TerminalPresenter) SkillCard(skill *skills.Skill, showContent bool) {
	if skill == nil {
		return
	}

	lines := []string{p.styles.title.Render(skill.Title)}
	if skill.Description != "" {
		lines = append(lines, skill.Description)
	}
	lines = append(lines, "")

	meta := fmt.Sprintf("%s/%s", skill.Source, skill.ID)
	if skill.Registry != "" {
		meta += " · " + skill.Registry
	}
	if skill.InstallCount > 0 {
		meta += fmt.Sprintf(" · %s installs", formatCount(skill.InstallCount))
	}
	lines = append(lines, p.styles.meta.Render(meta))

	if skill.RelevanceScore > 0 {
		lines = append(lines, p.styles.score.Render(fmt.Sprintf("score %.2f", skill.RelevanceScore)))
	}
	if skill.Version != "" {
		lines = append(lines, p.styles.meta.Render("version "+skill.Version))
	}
	if len(skill.AllowedTools) > 0 {
		lines = append(lines, p.styles.meta.Render("tools "+strings.Join(skill.AllowedTools, ", ")))
	}
	if skill.Refs.GitHub != "" {
		lines = append(lines, p.styles.meta.Render(skill.Refs.GitHub))
	}
	if len(skill.References) > 0 {
		names := make([]string, 0, len(skill.References))
		for _, r := range skill.References {
			names = append(names, r.Name)
		}
		lines = append(lines, p.styles.meta.Render("references "+strings.Join(names, ", ")))
	}
	if skill.FetchError != nil {
		lines = append(lines, p.styles.errMsg.Render("fetch error: "+*skill.FetchError))
	}

	fmt.Fprintln(p.output, p.styles.border.Render(strings.Join(lines, "\n")))

	if showContent && skill.Content != nil {
		fmt.Fprintf(p.output, "\n%s\n", strings.TrimRight(*skill.Content, "\n"))
		for _, r := range skill.References {
			if r.Content == nil {
				continue
			}
			fmt.Fprintln(p.output)
			p.Section(r.Path)
			fmt.Fprintf(p.output, "%s\n", strings.TrimRight(*r.Content, "\n"))
		}
	}
}

// SkillList renders every skill of a search response
func (p *TerminalPresenter) SkillList(resp *skills.SearchResponse, showContent bool) {
	if resp == nil || len(resp.Skills) == 0 {
		p.Warning(fmt.Sprintf("No skills found for %q", queryOf(resp)))
		return
	}

	p.Section(fmt.Sprintf("%d skill(s) for %q", resp.Count, resp.Query))
	for i, skill := range resp.Skills {
		if i > 0 && showContent {
			p.Separator()
		}
		p.SkillCard(skill, showContent)
	}
}

// CacheStats displays cache statistics
func (p *TerminalPresenter) CacheStats(stats cache.Stats) {
	statsColor := color.New(color.FgCyan, color.Bold)
	statsColor.Fprintf(p.output, "[Cache Stats] Size: %d/%d | Hits: %d | Misses: %d | Hit rate: %.2f%% | Evictions: %d\n",
		stats.Size, stats.MaxSize, stats.Hits, stats.Misses, stats.HitRate, stats.Evictions)
}

// Sources lists the configured skill sources
func (p *TerminalPresenter) Sources(sources []skills.SourceInfo) {
	p.Section("Sources")
	enabled := color.New(color.FgGreen)
	disabled := color.New(color.Faint)
	for _, s := range sources {
		if s.Enabled {
			enabled.Fprintf(p.output, "● %s\n", s.Name)
		} else {
			disabled.Fprintf(p.output, "○ %s (disabled)\n", s.Name)
		}
	}
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

func queryOf(resp *skills.SearchResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Query
}

// formatCount abbreviates install counts: 950, 1.2K, 3.4M
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// Global presenter instance for convenience
var defaultPresenter = New()

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter instance.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter instance.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter instance.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter instance.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Separator displays a visual separator using the default presenter instance.
func Separator() {
	defaultPresenter.Separator()
}

// SkillCard renders a skill using the default presenter instance.
func SkillCard(skill *skills.Skill, showContent bool) {
	defaultPresenter.SkillCard(skill, showContent)
}

// SkillList renders search results using the default presenter instance.
func SkillList(resp *skills.SearchResponse, showContent bool) {
	defaultPresenter.SkillList(resp, showContent)
}

// CacheStats displays cache statistics using the default presenter instance.
func CacheStats(stats cache.Stats) {
	defaultPresenter.CacheStats(stats)
}

// Sources lists skill sources using the default presenter instance.
func Sources(sources []skills.SourceInfo) {
	defaultPresenter.Sources(sources)
}

// SetQuiet enables or disables quiet mode for the default presenter instance.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// IsQuiet returns whether quiet mode is enabled for the default presenter instance.
func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
