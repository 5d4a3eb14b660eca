package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/driftnote/driftnote/internal/auth"
	"github.com/driftnote/driftnote/internal/deeplink"
	"github.com/driftnote/driftnote/internal/notes"
	"github.com/driftnote/driftnote/internal/recovery"
)

// screen indicates which top-level screen is active.
type screen int

const (
	screenLogin screen = iota
	screenNotes
	screenReset
)

// LinkOpenedMsg is delivered for every deep-link activation: the one that
// launched the process and any later ones forwarded by the listener.
type LinkOpenedMsg struct {
	URL string
}

// sessionExpiredMsg bounces the user back to sign-in after an unrecoverable 401.
type sessionExpiredMsg struct{}

// AppModel is the root Bubbletea model for driftnote.
type AppModel struct {
	screen screen
	login  LoginModel
	notes  NotesModel
	reset  ResetModel

	initCmd tea.Cmd
}

// NewAppModel creates the root model and picks the initial screen.
// routerParams is the structured credential set from the launch context and
// rawURL the raw activation URL; any activation at all lands on the reset
// screen (which renders "no link detected" when the link carries nothing).
// Otherwise a restored session opens notes, and everything else sign-in.
func NewAppModel(authClient *auth.Client, notesClient *notes.Client, routerParams deeplink.Params, rawURL string, hasSession bool) AppModel {
	m := AppModel{
		login: NewLoginModel(authClient),
		notes: NewNotesModel(notesClient),
		reset: NewResetModel(recovery.New(authClient), authClient),
	}
	switch {
	case rawURL != "" || routerParams != (deeplink.Params{}):
		m.screen = screenReset
		m.reset, m.initCmd = m.reset.Activate(routerParams, rawURL)
	case hasSession:
		m.screen = screenNotes
		m.notes, m.initCmd = m.notes.Load()
	default:
		m.screen = screenLogin
		m.initCmd = textinput.Blink
	}
	return m
}

// Init runs the initial screen's startup command.
func (m AppModel) Init() tea.Cmd {
	return m.initCmd
}

// Update handles global messages and routes the rest to the active screen.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case LinkOpenedMsg:
		params := deeplink.Parse(msg.URL)
		if m.screen != screenReset && params.HasCredentials() {
			m.screen = screenReset
		}
		if m.screen == screenReset {
			var cmd tea.Cmd
			m.reset, cmd = m.reset.Activate(params, msg.URL)
			return m, cmd
		}
		return m, nil

	case sessionExpiredMsg:
		m.screen = screenLogin
		m.login = m.login.WithError("session expired, sign in again")
		return m, textinput.Blink

	case signedOutMsg:
		m.screen = screenLogin
		m.login = NewLoginModel(m.login.auth)
		return m, textinput.Blink

	case LoginDoneMsg:
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		if msg.Err == nil {
			m.screen = screenNotes
			m.notes, cmd = m.notes.Load()
		}
		return m, cmd

	case resetNavigateMsg:
		// A stale tick after the screen already moved on is dropped.
		if m.screen == screenReset && msg.gen == m.reset.navGen {
			m.screen = screenLogin
			m.login = NewLoginModel(m.login.auth)
			return m, textinput.Blink
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.screen {
	case screenLogin:
		m.login, cmd = m.login.Update(msg)
	case screenNotes:
		m.notes, cmd = m.notes.Update(msg)
	case screenReset:
		m.reset, cmd = m.reset.Update(msg)
	}
	return m, cmd
}

// View renders the active screen under a shared header.
func (m AppModel) View() string {
	header := titleStyle.Render(" driftnote") + "\n"
	separator := "────────────────────────────────────────────────────────────\n"

	var body string
	switch m.screen {
	case screenLogin:
		body = m.login.View()
	case screenNotes:
		body = m.notes.View()
	case screenReset:
		body = m.reset.View()
	}
	return header + separator + body
}

// Run starts the Bubbletea program, pumping forwarded link activations into
// it until the links channel closes. Exits on terminal error.
func Run(m AppModel, links <-chan string) {
	p := tea.NewProgram(m, tea.WithAltScreen())
	if links != nil {
		go func() {
			for raw := range links {
				p.Send(LinkOpenedMsg{URL: raw})
			}
		}()
	}
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "driftnote error: %v\n", err)
		os.Exit(1)
	}
}
