package browse

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobrelay/internal/model"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// AllChannels is the picker entry that disables channel filtering.
const AllChannels = "All channels"

// ChannelCount is one picker entry.
type ChannelCount struct {
	Name  string
	Count int
}

// Channels counts opportunities per source channel, busiest first, with an
// AllChannels entry on top.
func Channels(opps []model.Opportunity) []ChannelCount {
	counts := make(map[string]int)
	for _, o := range opps {
		counts[o.SourceChannel]++
	}
	out := make([]ChannelCount, 0, len(counts)+1)
	for name, n := range counts {
		out = append(out, ChannelCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return append([]ChannelCount{{Name: AllChannels, Count: len(opps)}}, out...)
}

// FilterChannel returns the opportunities from channel, or all of them for AllChannels.
func FilterChannel(opps []model.Opportunity, channel string) []model.Opportunity {
	if channel == AllChannels {
		return opps
	}
	var out []model.Opportunity
	for _, o := range opps {
		if o.SourceChannel == channel {
			out = append(out, o)
		}
	}
	return out
}

type pickerModel struct {
	channels []ChannelCount
	cursor   int
	chosen   int // -1 = no choice yet, -2 = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.chosen = -2
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.channels)-1 {
				m.cursor++
			}
		case "enter":
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	s := pickerTitleStyle.Render("Browse messages · select a channel")
	s += "\n"

	for i, c := range m.channels {
		label := fmt.Sprintf("%s (%d)", c.Name, c.Count)
		if i == m.cursor {
			s += pickerSelectedStyle.Render("> "+label) + "\n"
		} else {
			s += pickerItemStyle.Render(label) + "\n"
		}
	}

	s += pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit")
	return s
}

// RunChannelPicker shows an interactive channel selector. It returns the index
// of the chosen entry, or a negative value if the user quit.
func RunChannelPicker(channels []ChannelCount) (int, error) {
	p := tea.NewProgram(pickerModel{channels: channels, chosen: -1})
	result, err := p.Run()
	if err != nil {
		return -1, err
	}
	return result.(pickerModel).chosen, nil
}
