package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quasar/mcauth/internal/login"
)

type AuthState int

const (
	AuthStateWorking        AuthState = iota
	AuthStateWaitingForUser           // browser sign-in
	AuthStateSuccess
	AuthStateError
)

// AuthModel shows a login in progress. The login itself runs in the app;
// this view renders its progress events.
type AuthModel struct {
	width  int
	height int

	state     AuthState
	count     int
	total     int
	visitMsg  string
	visitURL  string
	copied    bool
	err       error
	result    *login.Result
	cancelled bool

	spinner  spinner.Model
	progress progress.Model
}

func NewAuthModel() *AuthModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &AuthModel{
		state:    AuthStateWorking,
		total:    login.ProgressTotal,
		spinner:  s,
		progress: progress.New(progress.WithGradient(string(ColorPrimary), string(ColorAccent))),
	}
}

func (m *AuthModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *AuthModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.progress.Width = min(max(w-8, 10), 60)
}

func (m *AuthModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.MouseMsg:
		if msg.Type == tea.MouseLeft && m.state == AuthStateWaitingForUser {
			return m, m.copyURL()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q":
			if m.state == AuthStateWorking || m.state == AuthStateWaitingForUser {
				m.cancelled = true
				return m, func() tea.Msg { return CancelLogin{} }
			}
			return m, func() tea.Msg { return NavigateToHome{} }
		case "o":
			if m.state == AuthStateWaitingForUser {
				openBrowser(m.visitURL)
			}
		case "c":
			if m.state == AuthStateWaitingForUser {
				return m, m.copyURL()
			}
		case "enter":
			if m.state == AuthStateSuccess || m.state == AuthStateError {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
		}

	case LoginProgressMsg:
		if msg.Total > 0 {
			m.total = msg.Total
		}
		if msg.Count > 0 {
			m.count = msg.Count
		}
		return m, nil

	case VisitURLMsg:
		m.state = AuthStateWaitingForUser
		m.visitMsg = msg.Message
		m.visitURL = msg.URL
		// Give the user a moment to read the screen before the browser pops up.
		return m, tea.Tick(1*time.Second, func(_ time.Time) tea.Msg { return openBrowserMsg{} })

	case VisitURLClearedMsg:
		m.state = AuthStateWorking
		m.visitURL = ""
		return m, nil

	case LoginFinished:
		if msg.Err != nil {
			if m.cancelled || login.UserMessage(msg.Err) == "" {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			m.state = AuthStateError
			m.err = msg.Err
			return m, nil
		}
		m.state = AuthStateSuccess
		m.result = msg.Result
		m.count = m.total
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return NavigateToHome{}
		})

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openBrowserMsg:
		if m.state == AuthStateWaitingForUser && m.visitURL != "" {
			openBrowser(m.visitURL)
		}
		return m, nil

	case clearCopiedMsg:
		m.copied = false
		return m, nil
	}

	return m, nil
}

func (m *AuthModel) copyURL() tea.Cmd {
	if m.visitURL == "" {
		return nil
	}
	if err := copyToClipboard(m.visitURL); err != nil {
		return nil
	}
	m.copied = true
	return tea.Tick(2*time.Second, func(_ time.Time) tea.Msg { return clearCopiedMsg{} })
}

func (m *AuthModel) ratio() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.count) / float64(m.total)
}

func (m *AuthModel) View() string {
	doc := lipgloss.NewStyle().Padding(2, 4).Width(m.width).Height(m.height)

	title := TitleStyle.Render("Logging in")
	bar := m.progress.ViewAs(m.ratio())

	var content string

	switch m.state {
	case AuthStateWorking:
		content = fmt.Sprintf("%s\n\n%s\n\n%s Talking to Microsoft, Xbox Live and Minecraft...\n\n%s",
			title, bar, m.spinner.View(), HelpStyle.Render("[esc] cancel"))

	case AuthStateWaitingForUser:
		link := lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Render(m.visitURL)
		box := FocusedBoxStyle.Width(min(max(m.width-12, 20), 100)).Render(link)

		actionText := "[c] Copy link"
		if m.copied {
			actionText = "[✓] Copied!"
		}

		content = fmt.Sprintf(`%s

%s

%s. If it did not open, visit:
%s

%s Waiting for you to sign in...

%s`, title, bar, m.visitMsg, box, m.spinner.View(),
			HelpStyle.Render(buildHelpText([]string{actionText, "[o] open browser", "[esc] cancel"}, m.width-8)))

	case AuthStateSuccess:
		name := ""
		if m.result != nil && m.result.Profile != nil {
			name = m.result.Profile.Name
		}
		content = fmt.Sprintf("%s\n\n%s\n\n%s\n\nReturning to accounts...",
			title, bar, SuccessStyle.Render("Logged in as "+name))

	case AuthStateError:
		content = fmt.Sprintf("%s\n\n%s\n\n%s",
			title,
			ErrorStyle.Render("Login failed: "+login.UserMessage(m.err)),
			HelpStyle.Render("The stored session was cleared; the next attempt starts fresh.\n\n[enter] back"))
	}

	return doc.Render(content)
}

type clearCopiedMsg struct{}
type openBrowserMsg struct{}

// OpenBrowser opens url in the system browser, ignoring failures: the URL
// is always shown for manual use as well.
func OpenBrowser(url string) {
	openBrowser(url)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		return
	}
	if err := cmd.Start(); err == nil {
		go cmd.Wait()
	}
}

func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		// Try wl-copy first, then xclip
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	default:
		return fmt.Errorf("unsupported platform")
	}

	in, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := in.Write([]byte(text)); err != nil {
		return err
	}
	if err := in.Close(); err != nil {
		return err
	}

	return cmd.Wait()
}
