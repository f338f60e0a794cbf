// Package browse is a terminal UI over the opportunity store: a split-pane
// list of scanned vs. detected messages and a detail view per message.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobrelay/internal/dispatch"
	"github.com/amishk599/jobrelay/internal/model"
)

// Lines per item in the list view (excerpt + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39"))

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// History loads what happened to an opportunity after it was scanned.
type History interface {
	NotificationsFor(ctx context.Context, fingerprint string) ([]model.NotificationRecord, error)
	DeliveriesFor(ctx context.Context, fingerprint string) ([]model.DeliveryRecord, error)
}

type historyMsg struct {
	fingerprint   string
	notifications []model.NotificationRecord
	deliveries    []model.DeliveryRecord
	err           error
}

type browseModel struct {
	scanned       []model.Opportunity
	detected      []model.Opportunity
	threshold     float64
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=left, 1=right
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	view           viewState
	detail         model.Opportunity
	detailViewport viewport.Model
	history        History
	historyLoading bool
	historyError   string
	notifications  []model.NotificationRecord
	deliveries     []model.DeliveryRecord
	showFullText   bool

	wantQuit bool
}

// SplitDetected returns the opportunities whose score reaches threshold.
func SplitDetected(opps []model.Opportunity, threshold float64) []model.Opportunity {
	var out []model.Opportunity
	for _, o := range opps {
		if o.Score >= threshold {
			out = append(out, o)
		}
	}
	return out
}

func newBrowseModel(opps []model.Opportunity, threshold float64, history History) browseModel {
	sorted := append([]model.Opportunity(nil), opps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return browseModel{
		scanned:   sorted,
		detected:  SplitDetected(sorted, threshold),
		threshold: threshold,
		history:   history,
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case historyMsg:
		if msg.fingerprint != m.detail.Fingerprint {
			return m, nil
		}
		m.historyLoading = false
		if msg.err != nil {
			m.historyError = fmt.Sprintf("failed to load history: %v", msg.err)
		} else {
			m.historyError = ""
			m.notifications = msg.notifications
			m.deliveries = msg.deliveries
		}
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browseModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browseModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if len(m.detail.Contacts.Links) > 0 {
			openURL(m.detail.Contacts.Links[0])
		}
		return m, nil
	case "r":
		m.showFullText = !m.showFullText
		m.detailViewport.SetContent(m.renderDetail())
		m.detailViewport.SetYOffset(0)
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *browseModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.scanned)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.detected)-1, 0))
	}
}

func (m *browseModel) ensureCursorVisible() {
	vp, cursor := &m.leftViewport, m.leftCursor
	if m.activePane == 1 {
		vp, cursor = &m.rightViewport, m.rightCursor
	}

	top := cursor * itemHeight
	bottom := top + itemHeight - 1
	if top < vp.YOffset {
		vp.SetYOffset(top)
	} else if bottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(bottom - vp.Height + 1)
	}
}

func (m browseModel) openDetailView() (tea.Model, tea.Cmd) {
	opps, cursor := m.scanned, m.leftCursor
	if m.activePane == 1 {
		opps, cursor = m.detected, m.rightCursor
	}
	if len(opps) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detail = opps[cursor]
	m.notifications = nil
	m.deliveries = nil
	m.historyError = ""
	m.showFullText = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)

	var cmd tea.Cmd
	if m.history != nil {
		m.historyLoading = true
		cmd = m.loadHistoryCmd(m.detail.Fingerprint)
	}
	m.detailViewport.SetContent(m.renderDetail())
	return m, cmd
}

func (m browseModel) loadHistoryCmd(fp string) tea.Cmd {
	history := m.history
	return func() tea.Msg {
		ctx := context.Background()
		notifs, err := history.NotificationsFor(ctx, fp)
		if err != nil {
			return historyMsg{fingerprint: fp, err: err}
		}
		deliveries, err := history.DeliveriesFor(ctx, fp)
		return historyMsg{fingerprint: fp, notifications: notifs, deliveries: deliveries, err: err}
	}
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)
	// Header + border top/bottom + status bar.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	width := m.leftViewport.Width
	m.leftViewport.SetContent(renderOpportunities(m.scanned, m.leftCursor, m.activePane == 0, width))
	m.rightViewport.SetContent(renderOpportunities(m.detected, m.rightCursor, m.activePane == 1, width))
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Scanned (%d)", len(m.scanned))
	rightHeader := fmt.Sprintf(" Detected ≥ %.2f (%d)", m.threshold, len(m.detected))

	leftHeaderRendered := inactiveHeaderStyle.Render(leftHeader)
	rightHeaderRendered := activeHeaderStyle.Render(rightHeader)
	leftBorder := inactiveBorderStyle.Width(paneWidth)
	rightBorder := activeBorderStyle.Width(paneWidth)
	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		leftBorder.Render(m.leftViewport.View()),
		" ",
		rightBorder.Render(m.rightViewport.View()),
	)

	statusText := fmt.Sprintf(" %d scanned | %d detected | %d below threshold    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		len(m.scanned), len(m.detected), len(m.scanned)-len(m.detected))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Message Details")
	if m.historyLoading {
		title += "  (loading...)"
	}

	content := activeBorderStyle.Width(m.width - 2).Render(m.detailViewport.View())

	statusText := " r full text  esc/backspace back  ↑/↓ scroll  q quit"
	if len(m.detail.Contacts.Links) > 0 {
		statusText = " o open link  r full text  esc/backspace back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) renderDetail() string {
	o := m.detail
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Fingerprint", o.Fingerprint)
	addField("Channel", o.SourceChannel)
	addField("Message ID", o.SourceMessageID)
	addField("Score", fmt.Sprintf("%.2f", o.Score))
	addField("Scanned At", o.CreatedAt.Local().Format("2006-01-02 15:04 MST"))

	b.WriteByte('\n')
	addField("Emails", strings.Join(o.Contacts.Emails, ", "))
	addField("Handles", strings.Join(o.Contacts.Handles, ", "))
	for i, link := range o.Contacts.Links {
		label := ""
		if i == 0 {
			label = "Links"
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(link))
		b.WriteByte('\n')
	}

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len([]rune(label)), 3))
		return dividerStyle.Render(label + fill)
	}

	b.WriteByte('\n')
	b.WriteString(divider("── Outcome ") + "\n\n")
	switch {
	case m.historyError != "":
		b.WriteString(errorStyle.Render("⚠ "+m.historyError) + "\n")
	case m.historyLoading:
		b.WriteString(hintStyle.Render("  loading notifications and sends...") + "\n")
	default:
		if len(m.notifications) == 0 {
			b.WriteString(hintStyle.Render("  no operator notifications") + "\n")
		}
		for _, n := range m.notifications {
			addField("Operator "+n.TargetOperator, fmt.Sprintf("%s (%s)", n.Status, n.CreatedAt.Local().Format("2006-01-02 15:04")))
		}
		for _, d := range m.deliveries {
			addField("Sent", fmt.Sprintf("%s at %s", d.NormalizedContact, d.SentAt.Local().Format("2006-01-02 15:04")))
		}
	}

	b.WriteByte('\n')
	if m.showFullText {
		b.WriteString(divider("── Message ") + "\n\n")
		b.WriteString(bodyStyle.Render(wordWrap(o.Text, wrapWidth)) + "\n")
	} else {
		b.WriteString(bodyStyle.Render(wordWrap(dispatch.Excerpt(o.Text, 280), wrapWidth)) + "\n\n")
		b.WriteString(hintStyle.Render("  press r to read the full message") + "\n")
	}

	return b.String()
}

func renderOpportunities(opps []model.Opportunity, cursor int, isActive bool, width int) string {
	if len(opps) == 0 {
		return "  (no messages)"
	}

	excerptWidth := max(width-4, 10)
	var b strings.Builder
	for i, o := range opps {
		titleSt, subtitleSt, prefix := itemTitleStyle, itemSubtitleStyle, "  "
		if isActive && i == cursor {
			titleSt, subtitleSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		firstLine := strings.Join(strings.Fields(o.Text), " ")
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(dispatch.Excerpt(firstLine, excerptWidth)))
		b.WriteByte('\n')

		contacts := len(o.Contacts.Emails) + len(o.Contacts.Handles)
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%.2f · %s · %s · %d contacts",
			o.Score, o.SourceChannel, o.CreatedAt.Local().Format("2006-01-02 15:04"), contacts)))
		b.WriteByte('\n')

		if i < len(opps)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func wordWrap(text string, width int) string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) <= width {
				line += " " + w
			} else {
				out = append(out, line)
				line = w
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the split-pane browser. history may be nil. It returns
// wantQuit=true if the user pressed q/ctrl+c, false if they pressed esc to go
// back to the channel picker.
func Run(opps []model.Opportunity, threshold float64, history History) (bool, error) {
	p := tea.NewProgram(newBrowseModel(opps, threshold, history), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(browseModel).wantQuit, nil
}
