// Package ui provides the Bubble Tea TUI for the quote aggregator: a swap
// form on top, the ranked quote table below, and the selected route's detail
// at the bottom. All quote state comes from polling the session; the UI never
// talks to the sources itself.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/app"
	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/token"
	"github.com/mgrau/dexquote/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseDashboard Phase = "dashboard" // Main quote screen
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Params carries everything the TUI needs from the application container.
type Params struct {
	SessionFactory  func() *app.Session
	Registry        *token.Registry
	ChainID         uint64
	Sources         []string
	SlippagePercent float64
	Version         string
}

// pair is one directed token pair offered by the pair selector.
type pair struct {
	in  *token.Token
	out *token.Token
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	params  Params
	session *app.Session

	// Components
	quotes *components.QuotesComponent
	route  *components.RouteComponent
	amount textinput.Model
	keys   KeyMap

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// Input state
	pairs    []pair
	pairIdx  int
	reversed bool
	inputErr string

	// Session snapshot, refreshed every tick
	state app.SessionState

	// State
	ready    bool
	quitting bool
	width    int
	height   int
	errors   []ErrorEntry // Persistent error panel (last 3)
	logs     []string
}

// New creates a new TUI model.
func New(params Params) Model {
	amount := textinput.New()
	amount.Placeholder = "0.0"
	amount.SetValue("1")
	amount.CharLimit = 32
	amount.Width = 20
	amount.Prompt = "Amount: "
	amount.Focus()

	return Model{
		params:       params,
		quotes:       components.NewQuotesComponent(),
		route:        components.NewRouteComponent(),
		amount:       amount,
		keys:         DefaultKeyMap(),
		phase:        PhaseWelcome,
		welcomeStart: time.Now(),
		pairs:        buildPairs(params.Registry, params.ChainID),
		errors:       make([]ErrorEntry, 0, 3),
		logs:         make([]string, 0, 5),
	}
}

// buildPairs resolves the selectable pairs against the registry, dropping any
// whose tokens are unknown on this chain.
func buildPairs(registry *token.Registry, chainID uint64) []pair {
	candidates := [][2]string{
		{"WETH", "USDC"},
		{"WETH", "USDT"},
		{"WETH", "DAI"},
		{"WBTC", "WETH"},
		{"WBTC", "USDC"},
	}
	var pairs []pair
	for _, c := range candidates {
		in, okIn := registry.GetBySymbolAndChain(c[0], chainID)
		out, okOut := registry.GetBySymbolAndChain(c[1], chainID)
		if okIn && okOut {
			pairs = append(pairs, pair{in: in, out: out})
		}
	}
	return pairs
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), textinput.Blink)
}

// tickCmd returns a command that sends a tick every 100ms; each tick polls
// the session state and drives animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			if m.session != nil {
				m.session.Dispose()
			}
			return m, tea.Quit
		}
		// During welcome phase, any other key skips ahead
		if m.phase == PhaseWelcome {
			m = m.enterDashboard()
			return m, tickCmd()
		}
		return m.handleDashboardKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m = m.enterDashboard()
		}
		if m.session != nil {
			m.state = m.session.State()
			m.syncComponents()
		}
		return m, tickCmd()

	case ErrorMsg:
		m.errors = append(m.errors, ErrorEntry{
			Message:   msg.Error.Error(),
			Timestamp: time.Now(),
		})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)
	}

	return m, nil
}

// enterDashboard creates the session and fires the first request.
func (m Model) enterDashboard() Model {
	m.phase = PhaseDashboard
	if OnStartModules != nil {
		// Trigger callback directly (don't use Send() from within Update)
		go OnStartModules()
	}
	if m.session == nil && m.params.SessionFactory != nil {
		m.session = m.params.SessionFactory()
		m.pushInput()
	}
	return m
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Refresh):
		if m.session != nil {
			m.session.Refresh(false)
		}
		return m, nil
	case key.Matches(msg, m.keys.ForceRefresh):
		if m.session != nil {
			m.session.Refresh(true)
		}
		return m, nil
	case key.Matches(msg, m.keys.NextPair):
		if len(m.pairs) > 0 {
			m.pairIdx = (m.pairIdx + 1) % len(m.pairs)
			m.reversed = false
			m.pushInput()
		}
		return m, nil
	case key.Matches(msg, m.keys.Swap):
		m.reversed = !m.reversed
		m.pushInput()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.quotes.MoveUp()
		m.syncComponents()
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.quotes.MoveDown()
		m.syncComponents()
		return m, nil
	case key.Matches(msg, m.keys.ClearErrors):
		m.errors = make([]ErrorEntry, 0, 3)
		return m, nil
	}

	// Everything else edits the amount field; an actual change re-debounces.
	before := m.amount.Value()
	var cmd tea.Cmd
	m.amount, cmd = m.amount.Update(msg)
	if m.amount.Value() != before {
		m.pushInput()
	}
	return m, cmd
}

// currentPair returns the selected pair honoring the swap direction.
func (m Model) currentPair() (in, out *token.Token, ok bool) {
	if len(m.pairs) == 0 {
		return nil, nil, false
	}
	p := m.pairs[m.pairIdx]
	if m.reversed {
		return p.out, p.in, true
	}
	return p.in, p.out, true
}

// pushInput feeds the current form values into the session. The session owns
// debouncing and request collapsing; the UI just forwards every edit.
func (m *Model) pushInput() {
	if m.session == nil {
		return
	}
	in, out, ok := m.currentPair()
	if !ok {
		m.inputErr = "no token pairs available on this chain"
		return
	}

	raw := strings.TrimSpace(m.amount.Value())
	if raw == "" {
		m.inputErr = ""
		return
	}
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		m.inputErr = "invalid amount"
		return
	}
	m.inputErr = ""

	m.session.SetInput(domain.QuoteRequest{
		TokenIn:         in,
		TokenOut:        out,
		AmountIn:        amt,
		SlippagePercent: m.params.SlippagePercent,
	})
}

// syncComponents projects the session snapshot into the display components.
func (m *Model) syncComponents() {
	if m.state.Result == nil {
		m.quotes.Update(nil, "")
		m.route.Clear()
		return
	}

	result := m.state.Result
	outSymbol := ""
	if len(result.AllQuotes) > 0 {
		outSymbol = result.AllQuotes[0].TokenOut.Symbol()
	}

	rows := make([]components.QuoteRow, len(result.AllQuotes))
	for i, q := range result.AllQuotes {
		rows[i] = components.QuoteRow{
			Rank:          i + 1,
			Source:        q.SourceName,
			AmountOut:     q.AmountOut,
			MinReceived:   q.AmountOutMinimum,
			ImpactPercent: q.PriceImpactPercent,
			GasCostUSD:    q.GasCostUSD,
			Hops:          q.HopCount(),
			Route:         q.RouteSummary(),
		}
	}
	m.quotes.Update(rows, outSymbol)

	sel := m.quotes.Selected()
	if sel >= 0 && sel < len(result.AllQuotes) {
		q := result.AllQuotes[sel]
		m.route.Update(q.SourceName,
			q.AmountOutMinimum.StringFixed(6)+" "+q.TokenOut.Symbol(),
			buildRouteSteps(q))
	}
}

// buildRouteSteps groups a quote's flat hop list into sequential steps,
// collecting parallel split legs per position.
func buildRouteSteps(q *domain.Quote) []components.RouteStep {
	var steps []components.RouteStep
	var lastIn, lastOut *token.Token
	for _, h := range q.Route {
		leg := components.RouteLeg{Description: h.String(), SplitPercent: h.SplitPercent}
		n := len(steps)
		if n > 0 && lastIn.Equals(h.TokenIn) && lastOut.Equals(h.TokenOut) {
			steps[n-1].Legs = append(steps[n-1].Legs, leg)
			continue
		}
		steps = append(steps, components.RouteStep{Legs: []components.RouteLeg{leg}})
		lastIn, lastOut = h.TokenIn, h.TokenOut
	}
	return steps
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logLine := fmt.Sprintf("[%s] %s: %s", timestamp, level, message)
	logs = append(logs, logLine)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	if m.phase == PhaseWelcome {
		return m.renderWelcomeScreen()
	}

	var b strings.Builder

	title := TitleStyle.Render(" ⇄ dexquote ")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	b.WriteString(m.renderForm())
	b.WriteString("\n\n")

	width := m.width
	if width < 40 {
		width = 84
	}
	b.WriteString(BoxStyle.Width(width - 4).Render(m.quotes.View()))
	b.WriteString("\n")
	b.WriteString(BoxStyle.Width(width - 4).Render(m.route.View()))
	b.WriteString("\n\n")

	// Persistent error panel (show last 3 errors)
	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (ctrl+e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render("  • " + err.Message + " "))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	helpText := "esc: quit • tab: pair • ctrl+s: swap • ctrl+r: refresh • ctrl+f: force • ↑↓: select"
	b.WriteString(HelpStyle.Render(helpText))

	return b.String()
}

// renderForm renders the pair selector and amount input.
func (m Model) renderForm() string {
	pairStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))

	in, out, ok := m.currentPair()
	pairLabel := "n/a"
	if ok {
		pairLabel = in.Symbol() + " → " + out.Symbol()
	}

	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(MutedValue.Render("Pair: "))
	sb.WriteString(pairStyle.Render(pairLabel))
	sb.WriteString("    ")
	sb.WriteString(m.amount.View())
	if m.inputErr != "" {
		sb.WriteString("  ")
		sb.WriteString(StatusError.Render(m.inputErr))
	}
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	switch m.state.Status {
	case app.StatusDebouncing:
		parts = append(parts, MutedValue.Render("⌨ waiting for input to settle"))
	case app.StatusFetching:
		spinners := []string{"◐", "◓", "◑", "◒"}
		idx := int(time.Now().UnixMilli()/150) % len(spinners)
		parts = append(parts, StatusFetching.Render(spinners[idx]+" Fetching quotes"))
	case app.StatusSuccess:
		parts = append(parts, StatusSuccess.Render("✓ Quotes ready"))
	case app.StatusError:
		msg := "request failed"
		if m.state.Err != nil {
			msg = m.state.Err.Error()
		}
		parts = append(parts, StatusError.Render("✗ "+msg))
	default:
		parts = append(parts, MutedValue.Render("Idle"))
	}

	if m.state.IsStale {
		parts = append(parts, StaleBadge.Render("STALE"))
	}
	if m.state.Degraded {
		parts = append(parts, DegradedBadge.Render("SHOWING LAST GOOD"))
	}

	if m.state.Result != nil {
		ago := time.Since(m.state.Result.RequestedAt).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}

	if len(m.params.Sources) > 0 {
		parts = append(parts, MutedValue.Render("Sources: "+strings.Join(m.params.Sources, ", ")))
	}

	return "  " + strings.Join(parts, "  │  ")
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)

	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	elapsed := time.Since(m.welcomeStart)
	dotCount := int(elapsed.Milliseconds()/300) % 4
	dots := strings.Repeat(".", dotCount)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ██████╗ ███████╗██╗  ██╗ ██████╗ ██╗   ██╗ ██████╗ ████████╗███████╗
   ██╔══██╗██╔════╝╚██╗██╔╝██╔═══██╗██║   ██║██╔═══██╗╚══██╔══╝██╔════╝
   ██║  ██║█████╗   ╚███╔╝ ██║   ██║██║   ██║██║   ██║   ██║   █████╗
   ██║  ██║██╔══╝   ██╔██╗ ██║▄▄ ██║██║   ██║██║   ██║   ██║   ██╔══╝
   ██████╔╝███████╗██╔╝ ██╗╚██████╔╝╚██████╔╝╚██████╔╝   ██║   ███████╗
   ╚═════╝ ╚══════╝╚═╝  ╚═╝ ╚══▀▀═╝  ╚═════╝  ╚═════╝    ╚═╝   ╚══════╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")

	subtitle := "        M U L T I - S O U R C E   S W A P   Q U O T E S"
	sb.WriteString(mutedStyle.Render(subtitle))
	sb.WriteString("\n\n\n")

	loading := fmt.Sprintf("                  Initializing%s", dots)
	sb.WriteString(greenStyle.Render(loading))
	sb.WriteString("\n\n")

	hint := "            Press any key to skip, or wait..."
	sb.WriteString(mutedStyle.Render(hint))
	sb.WriteString("\n")

	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules
// should start. Set by main.go.
var OnStartModules func()

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}
