package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/driftnote/driftnote/internal/auth"
)

// LoginDoneMsg is sent when the sign-in call completes.
// It is exported so that tests can inject it directly into Update.
type LoginDoneMsg struct {
	Err error
}

// LoginModel is the email/password sign-in screen.
type LoginModel struct {
	auth     *auth.Client
	email    textinput.Model
	password textinput.Model
	spin     spinner.Model
	focus    int // 0 email, 1 password
	busy     bool
	errMsg   string
}

// NewLoginModel creates the sign-in screen.
func NewLoginModel(authClient *auth.Client) LoginModel {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Width = 32
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 72
	password.Width = 32

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle

	return LoginModel{auth: authClient, email: email, password: password, spin: spin}
}

// WithError returns the model showing the given message, with fields cleared
// and focus back on email. Used when another screen bounces the user here.
func (m LoginModel) WithError(msg string) LoginModel {
	m.errMsg = msg
	m.busy = false
	m.password.SetValue("")
	return m.setFocus(0)
}

func (m LoginModel) setFocus(focus int) LoginModel {
	m.focus = focus
	if focus == 0 {
		m.email.Focus()
		m.password.Blur()
	} else {
		m.password.Focus()
		m.email.Blur()
	}
	return m
}

// Update handles messages while the login screen is active.
func (m LoginModel) Update(msg tea.Msg) (LoginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case LoginDoneMsg:
		m.busy = false
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
			m.password.SetValue("")
			return m.setFocus(1), textinput.Blink
		}
		m.errMsg = ""
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			return m.setFocus(1 - m.focus), textinput.Blink
		case "enter":
			if m.focus == 0 {
				return m.setFocus(1), textinput.Blink
			}
			return m.submit()
		}
		var cmd tea.Cmd
		if m.focus == 0 {
			m.email, cmd = m.email.Update(msg)
		} else {
			m.password, cmd = m.password.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m LoginModel) submit() (LoginModel, tea.Cmd) {
	email, password := m.email.Value(), m.password.Value()
	if email == "" || password == "" {
		m.errMsg = "email and password are required"
		return m, nil
	}
	m.busy = true
	m.errMsg = ""
	client := m.auth
	return m, tea.Batch(m.spin.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		return LoginDoneMsg{Err: client.SignIn(ctx, email, password)}
	})
}

// View renders the sign-in form.
func (m LoginModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" Sign in") + "\n\n")
	b.WriteString(" Email:    " + m.email.View() + "\n")
	b.WriteString(" Password: " + m.password.View() + "\n")
	if m.busy {
		b.WriteString(fmt.Sprintf("\n %s Signing in...\n", m.spin.View()))
	}
	if m.errMsg != "" {
		b.WriteString("\n " + errorStyle.Render(m.errMsg) + "\n")
	}
	b.WriteString("\n" + hintStyle.Render(" tab: switch field   enter: sign in   ctrl+c: quit") + "\n")
	return b.String()
}
