package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/driftnote/driftnote/internal/auth"
	"github.com/driftnote/driftnote/internal/notes"
)

// NotesLoadedMsg is sent when the notes list has been fetched.
// It is exported so that tests can inject it directly into Update.
type NotesLoadedMsg struct {
	Notes []notes.Note
	Err   error
}

// noteSavedMsg is sent when a create or update completes.
type noteSavedMsg struct {
	err error
}

// noteDeletedMsg is sent when a delete completes.
type noteDeletedMsg struct {
	err error
}

// signedOutMsg is sent when the sign-out call completes.
type signedOutMsg struct{}

type notesMode int

const (
	notesList notesMode = iota
	notesEdit
)

// NotesModel is the notes CRUD screen.
type NotesModel struct {
	client *notes.Client

	notes   []notes.Note
	cursor  int
	mode    notesMode
	loading bool
	errMsg  string

	confirmDelete bool
	editingID     uuid.UUID // zero while creating
	titleInput    textinput.Model
	bodyInput     textinput.Model
	focus         int
	spin          spinner.Model
}

// NewNotesModel creates the notes screen.
func NewNotesModel(client *notes.Client) NotesModel {
	title := textinput.New()
	title.Placeholder = "title"
	title.CharLimit = 120
	title.Width = 40

	body := textinput.New()
	body.Placeholder = "body"
	body.CharLimit = 500
	body.Width = 60

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle

	return NotesModel{client: client, titleInput: title, bodyInput: body, spin: spin}
}

// Load kicks off a list fetch and returns the model in its loading state.
func (m NotesModel) Load() (NotesModel, tea.Cmd) {
	m.loading = true
	m.errMsg = ""
	client := m.client
	return m, tea.Batch(m.spin.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		list, err := client.List(ctx)
		return NotesLoadedMsg{Notes: list, Err: err}
	})
}

// unauthorizedCmd routes a 401 back to the root model as a session expiry.
func unauthorizedCmd(err error) tea.Cmd {
	if err != nil && errors.Is(err, auth.ErrUnauthorized) {
		return func() tea.Msg { return sessionExpiredMsg{} }
	}
	return nil
}

// Update handles messages while the notes screen is active.
func (m NotesModel) Update(msg tea.Msg) (NotesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case NotesLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			if cmd := unauthorizedCmd(msg.Err); cmd != nil {
				return m, cmd
			}
			m.errMsg = msg.Err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.notes = msg.Notes
		if m.cursor >= len(m.notes) {
			m.cursor = 0
		}
		return m, nil

	case noteSavedMsg:
		if msg.err != nil {
			if cmd := unauthorizedCmd(msg.err); cmd != nil {
				return m, cmd
			}
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.mode = notesList
		return m.Load()

	case noteDeletedMsg:
		m.confirmDelete = false
		if msg.err != nil {
			if cmd := unauthorizedCmd(msg.err); cmd != nil {
				return m, cmd
			}
			m.errMsg = msg.err.Error()
			return m, nil
		}
		return m.Load()

	case tea.KeyMsg:
		if m.mode == notesEdit {
			return m.updateEdit(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m NotesModel) updateList(msg tea.KeyMsg) (NotesModel, tea.Cmd) {
	if m.confirmDelete {
		switch msg.String() {
		case "y":
			m.confirmDelete = false
			if len(m.notes) == 0 {
				return m, nil
			}
			id := m.notes[m.cursor].ID
			client := m.client
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
				defer cancel()
				return noteDeletedMsg{err: client.Delete(ctx, id)}
			}
		default:
			m.confirmDelete = false
			return m, nil
		}
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "down":
		if m.cursor < len(m.notes)-1 {
			m.cursor++
		}
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "ctrl+r":
		return m.Load()
	case "n":
		m.mode = notesEdit
		m.editingID = uuid.Nil
		m.titleInput.SetValue("")
		m.bodyInput.SetValue("")
		return m.setEditFocus(0), textinput.Blink
	case "enter":
		if len(m.notes) == 0 {
			return m, nil
		}
		sel := m.notes[m.cursor]
		m.mode = notesEdit
		m.editingID = sel.ID
		m.titleInput.SetValue(sel.Title)
		m.bodyInput.SetValue(sel.Body)
		return m.setEditFocus(0), textinput.Blink
	case "d":
		if len(m.notes) > 0 {
			m.confirmDelete = true
		}
	case "ctrl+o":
		client := m.client.Auth()
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
			defer cancel()
			// Local session is cleared even when the revoke call fails.
			_ = client.SignOut(ctx)
			return signedOutMsg{}
		}
	}
	return m, nil
}

func (m NotesModel) setEditFocus(focus int) NotesModel {
	m.focus = focus
	if focus == 0 {
		m.titleInput.Focus()
		m.bodyInput.Blur()
	} else {
		m.bodyInput.Focus()
		m.titleInput.Blur()
	}
	return m
}

func (m NotesModel) updateEdit(msg tea.KeyMsg) (NotesModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = notesList
		return m, nil
	case "tab", "shift+tab":
		return m.setEditFocus(1 - m.focus), textinput.Blink
	case "enter":
		if m.focus == 0 {
			return m.setEditFocus(1), textinput.Blink
		}
		return m.save()
	}
	var cmd tea.Cmd
	if m.focus == 0 {
		m.titleInput, cmd = m.titleInput.Update(msg)
	} else {
		m.bodyInput, cmd = m.bodyInput.Update(msg)
	}
	return m, cmd
}

func (m NotesModel) save() (NotesModel, tea.Cmd) {
	title, body := m.titleInput.Value(), m.bodyInput.Value()
	if title == "" {
		m.errMsg = "title is required"
		return m, nil
	}
	m.errMsg = ""
	client := m.client
	id := m.editingID
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		var err error
		if id == uuid.Nil {
			_, err = client.Create(ctx, title, body)
		} else {
			err = client.Update(ctx, notes.Note{ID: id, Title: title, Body: body})
		}
		return noteSavedMsg{err: err}
	}
}

// View renders the notes screen.
func (m NotesModel) View() string {
	if m.mode == notesEdit {
		return m.viewEdit()
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(" Notes") + "\n\n")

	switch {
	case m.loading:
		b.WriteString(fmt.Sprintf(" %s Loading notes...\n", m.spin.View()))
	case len(m.notes) == 0:
		b.WriteString(" No notes yet.\n")
	default:
		for i, n := range m.notes {
			prefix := "  "
			if i == m.cursor {
				prefix = "> "
			}
			b.WriteString(fmt.Sprintf("%s%-30s %s\n", prefix, truncate(n.Title, 30), formatAge(n.UpdatedAt)))
		}
	}
	if m.errMsg != "" {
		b.WriteString("\n " + errorStyle.Render(m.errMsg) + "\n")
	}

	footer := " ↑/↓: navigate   enter: edit   n: new   d: delete   ctrl+r: refresh   ctrl+o: sign out   q: quit"
	if m.confirmDelete && len(m.notes) > 0 {
		footer = fmt.Sprintf(" Delete %q? [y/N]", truncate(m.notes[m.cursor].Title, 30))
	}
	b.WriteString("\n" + hintStyle.Render(footer) + "\n")
	return b.String()
}

func (m NotesModel) viewEdit() string {
	var b strings.Builder
	heading := " New note"
	if m.editingID != uuid.Nil {
		heading = " Edit note"
	}
	b.WriteString(titleStyle.Render(heading) + "\n\n")
	b.WriteString(" Title: " + m.titleInput.View() + "\n")
	b.WriteString(" Body:  " + m.bodyInput.View() + "\n")
	if m.errMsg != "" {
		b.WriteString("\n " + errorStyle.Render(m.errMsg) + "\n")
	}
	b.WriteString("\n" + hintStyle.Render(" tab: switch field   enter: save   esc: cancel") + "\n")
	return b.String()
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
