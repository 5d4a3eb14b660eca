package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/driftnote/driftnote/internal/auth"
	"github.com/driftnote/driftnote/internal/deeplink"
	"github.com/driftnote/driftnote/internal/recovery"
)

const (
	minPasswordLen = 8
	navigateDelay  = 2 * time.Second
	remoteTimeout  = 30 * time.Second
)

// ExchangeDoneMsg is sent when a credential exchange completes.
// It is exported so that tests can inject it directly into Update.
type ExchangeDoneMsg struct {
	Out recovery.Outcome
}

// PasswordSavedMsg is sent when the new-password submission completes.
// It is exported so that tests can inject it directly into Update.
type PasswordSavedMsg struct {
	Err error
}

// recoverySentMsg is sent when a request for a fresh recovery link completes.
type recoverySentMsg struct {
	err error
}

// resetNavigateMsg fires after the post-success delay. gen guards against a
// stale tick arriving after the screen has already moved on.
type resetNavigateMsg struct {
	gen int
}

// ResetModel is the screen hosting the recovery-link resolver and the
// new-password form.
type ResetModel struct {
	resolver *recovery.Resolver
	auth     *auth.Client

	password textinput.Model
	confirm  textinput.Model
	email    textinput.Model
	spin     spinner.Model

	focus          int // 0 password, 1 confirm
	validationMsg  string
	promptingEmail bool
	recoverNotice  string
	navGen         int
}

// NewResetModel creates the reset-password screen around the given resolver.
func NewResetModel(resolver *recovery.Resolver, authClient *auth.Client) ResetModel {
	password := textinput.New()
	password.Placeholder = "new password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 72
	password.Width = 32

	confirm := textinput.New()
	confirm.Placeholder = "repeat password"
	confirm.EchoMode = textinput.EchoPassword
	confirm.EchoCharacter = '•'
	confirm.CharLimit = 72
	confirm.Width = 32

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Width = 32

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle

	return ResetModel{
		resolver: resolver,
		auth:     authClient,
		password: password,
		confirm:  confirm,
		email:    email,
		spin:     spin,
	}
}

// Activate reconciles the two credential sources: the structured parameter
// set supplied by the host comes first; only when it carries no credentials
// is the raw activation URL parsed, since fragment credentials travel only
// there. Called again for every later link activation: a finished flow
// (error or updated) restarts from scratch with the new credentials, while
// an in-flight exchange keeps going and the new link is ignored.
func (m ResetModel) Activate(params deeplink.Params, rawURL string) (ResetModel, tea.Cmd) {
	if !params.HasCredentials() {
		params = deeplink.Parse(rawURL)
	}
	if !params.HasCredentials() {
		return m, nil
	}
	m.resolver.Reset()
	if m.resolver.Begin(params) {
		m.password.SetValue("")
		m.confirm.SetValue("")
		m.validationMsg = ""
		m.promptingEmail = false
		m.recoverNotice = ""
		// Invalidates any navigation tick still pending from a previous flow.
		m.navGen++
		return m, tea.Batch(m.spin.Tick, m.exchangeCmd())
	}
	return m, nil
}

// Status exposes the resolver's state for the root model and tests.
func (m ResetModel) Status() recovery.Status {
	return m.resolver.Status()
}

func (m ResetModel) exchangeCmd() tea.Cmd {
	r := m.resolver
	return func() tea.Msg {
		// No cancellation: an in-flight exchange runs to completion even if
		// the screen goes away; a stale outcome msg is simply dropped.
		return ExchangeDoneMsg{Out: r.Exchange(context.Background())}
	}
}

// Update handles messages while the reset screen is active.
func (m ResetModel) Update(msg tea.Msg) (ResetModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.resolver.Status() == recovery.StatusLoading {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case ExchangeDoneMsg:
		m.resolver.Finish(msg.Out)
		if m.resolver.Status() == recovery.StatusReady {
			m.focus = 0
			m.password.Focus()
			m.confirm.Blur()
			return m, textinput.Blink
		}
		return m, nil

	case PasswordSavedMsg:
		m.resolver.PasswordResult(msg.Err)
		if m.resolver.Status() == recovery.StatusUpdated {
			m.navGen++
			gen := m.navGen
			return m, tea.Tick(navigateDelay, func(time.Time) tea.Msg {
				return resetNavigateMsg{gen: gen}
			})
		}
		return m, nil

	case recoverySentMsg:
		if msg.err != nil {
			m.recoverNotice = "Could not request a new link: " + msg.err.Error()
		} else {
			m.recoverNotice = "Check your inbox for a fresh recovery link."
			m.promptingEmail = false
			m.email.Blur()
		}
		return m, nil

	case tea.KeyMsg:
		switch m.resolver.Status() {
		case recovery.StatusReady:
			return m.updateForm(msg)
		case recovery.StatusError:
			return m.updateError(msg)
		default:
			if msg.String() == "q" {
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m ResetModel) updateForm(msg tea.KeyMsg) (ResetModel, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		return m.setFocus(1 - m.focus), textinput.Blink
	case "enter":
		if m.focus == 0 {
			return m.setFocus(1), textinput.Blink
		}
		return m.submitPassword()
	}
	var cmd tea.Cmd
	if m.focus == 0 {
		m.password, cmd = m.password.Update(msg)
	} else {
		m.confirm, cmd = m.confirm.Update(msg)
	}
	return m, cmd
}

func (m ResetModel) setFocus(focus int) ResetModel {
	m.focus = focus
	if focus == 0 {
		m.password.Focus()
		m.confirm.Blur()
	} else {
		m.confirm.Focus()
		m.password.Blur()
	}
	return m
}

func (m ResetModel) submitPassword() (ResetModel, tea.Cmd) {
	pw, confirm := m.password.Value(), m.confirm.Value()
	// Local validation failures never leave ready and never touch the network.
	if len(pw) < minPasswordLen {
		m.validationMsg = fmt.Sprintf("password must be at least %d characters", minPasswordLen)
		return m, nil
	}
	if pw != confirm {
		m.validationMsg = "passwords do not match"
		return m, nil
	}
	m.validationMsg = ""
	client := m.auth
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		return PasswordSavedMsg{Err: client.UpdatePassword(ctx, pw)}
	}
}

func (m ResetModel) updateError(msg tea.KeyMsg) (ResetModel, tea.Cmd) {
	flowErr := m.resolver.Err()
	if flowErr == nil {
		return m, nil
	}

	if flowErr.Retryable {
		switch msg.String() {
		case "r":
			if m.resolver.Retry() {
				return m, tea.Batch(m.spin.Tick, m.exchangeCmd())
			}
		case "q":
			return m, tea.Quit
		}
		return m, nil
	}

	// Terminal: the link is spent, so offer a fresh one instead of a retry.
	if m.promptingEmail {
		switch msg.String() {
		case "enter":
			addr := m.email.Value()
			if addr == "" {
				return m, nil
			}
			client := m.auth
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
				defer cancel()
				return recoverySentMsg{err: client.RequestRecovery(ctx, addr)}
			}
		case "esc":
			m.promptingEmail = false
			m.email.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.email, cmd = m.email.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "n":
		m.promptingEmail = true
		m.recoverNotice = ""
		m.email.Focus()
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

// View renders the reset screen for the resolver's current state.
func (m ResetModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" Reset password") + "\n\n")

	switch m.resolver.Status() {
	case recovery.StatusIdle:
		b.WriteString(" No reset link detected.\n\n")
		b.WriteString(hintStyle.Render(" Open the link from your reset email to continue.   q: quit") + "\n")

	case recovery.StatusLoading:
		b.WriteString(fmt.Sprintf(" %s Verifying recovery link...\n", m.spin.View()))

	case recovery.StatusReady:
		b.WriteString(" Choose a new password.\n\n")
		b.WriteString(" " + m.password.View() + "\n")
		b.WriteString(" " + m.confirm.View() + "\n")
		if m.validationMsg != "" {
			b.WriteString("\n " + errorStyle.Render(m.validationMsg) + "\n")
		}
		b.WriteString("\n" + hintStyle.Render(" tab: switch field   enter: save") + "\n")

	case recovery.StatusUpdated:
		b.WriteString(okStyle.Render(" Password updated.") + "\n\n")
		b.WriteString(hintStyle.Render(" Returning to sign-in...") + "\n")

	case recovery.StatusError:
		flowErr := m.resolver.Err()
		if flowErr.Retryable {
			b.WriteString(" " + errorStyle.Render(flowErr.Message) + "\n\n")
			b.WriteString(hintStyle.Render(" r: retry   q: quit") + "\n")
			break
		}
		b.WriteString(" " + errorStyle.Render("This recovery link has expired or was already used.") + "\n\n")
		if m.promptingEmail {
			b.WriteString(" Email: " + m.email.View() + "\n")
			b.WriteString("\n" + hintStyle.Render(" enter: send link   esc: back") + "\n")
		} else {
			b.WriteString(hintStyle.Render(" n: request a new link   q: quit") + "\n")
		}
		if m.recoverNotice != "" {
			b.WriteString("\n " + m.recoverNotice + "\n")
		}
	}
	return b.String()
}
