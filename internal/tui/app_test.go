package tui_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/driftnote/driftnote/internal/auth"
	"github.com/driftnote/driftnote/internal/deeplink"
	"github.com/driftnote/driftnote/internal/notes"
	"github.com/driftnote/driftnote/internal/recovery"
	"github.com/driftnote/driftnote/internal/tui"
)

func newAppModel(params deeplink.Params, rawURL string, hasSession bool) tui.AppModel {
	authClient := auth.NewClient("http://127.0.0.1:0", "anon_test")
	notesClient := notes.NewClient("http://127.0.0.1:0", "anon_test", authClient)
	return tui.NewAppModel(authClient, notesClient, params, rawURL, hasSession)
}

func update(t *testing.T, m tui.AppModel, msg tea.Msg) (tui.AppModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	app, ok := next.(tui.AppModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return app, cmd
}

func TestNewAppModel_LinkActivationOpensReset(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "driftnote://reset?code=abc123", false)
	if !strings.Contains(m.View(), "Reset password") {
		t.Errorf("expected the reset screen, got:\n%s", m.View())
	}
	if !strings.Contains(m.View(), "Verifying recovery link") {
		t.Errorf("expected the exchange to have started, got:\n%s", m.View())
	}
}

func TestNewAppModel_BareLinkStillOpensReset(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "driftnote://reset", false)
	if !strings.Contains(m.View(), "No reset link detected") {
		t.Errorf("expected the reset screen in its idle state, got:\n%s", m.View())
	}
}

func TestNewAppModel_RestoredSessionOpensNotes(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", true)
	if !strings.Contains(m.View(), "Notes") {
		t.Errorf("expected the notes screen, got:\n%s", m.View())
	}
	if m.Init() == nil {
		t.Error("expected an initial load command")
	}
}

func TestNewAppModel_DefaultsToSignIn(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", false)
	if !strings.Contains(m.View(), "Sign in") {
		t.Errorf("expected the sign-in screen, got:\n%s", m.View())
	}
}

func TestUpdate_LinkWithCredentialsSwitchesToReset(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", true)
	m, cmd := update(t, m, tui.LinkOpenedMsg{URL: "driftnote://reset#token_hash=H&type=recovery"})

	if !strings.Contains(m.View(), "Verifying recovery link") {
		t.Errorf("expected the reset screen verifying, got:\n%s", m.View())
	}
	if cmd == nil {
		t.Error("expected an exchange command")
	}
}

func TestUpdate_LinkWithoutCredentialsLeavesScreenAlone(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", true)
	m, _ = update(t, m, tui.LinkOpenedMsg{URL: "driftnote://reset"})

	if !strings.Contains(m.View(), "Notes") {
		t.Errorf("expected to stay on notes, got:\n%s", m.View())
	}
}

func TestUpdate_CtrlCQuitsEverywhere(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", false)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg, got %T", cmd())
	}
}

func TestUpdate_SuccessfulLoginOpensNotes(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", false)
	m, cmd := update(t, m, tui.LoginDoneMsg{})

	if !strings.Contains(m.View(), "Notes") {
		t.Errorf("expected the notes screen, got:\n%s", m.View())
	}
	if cmd == nil {
		t.Error("expected a notes load command")
	}
}

func TestUpdate_FailedLoginStaysOnSignIn(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "", false)
	m, _ = update(t, m, tui.LoginDoneMsg{Err: authError()})

	view := m.View()
	if !strings.Contains(view, "Sign in") {
		t.Errorf("expected to stay on sign-in, got:\n%s", view)
	}
	if !strings.Contains(view, "Invalid login credentials") {
		t.Errorf("expected the remote message verbatim, got:\n%s", view)
	}
}

func authError() error {
	return &auth.APIError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
}

func TestUpdate_FreshLinkAfterExpiredErrorStartsNewExchange(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "driftnote://reset?code=spent", false)
	m, _ = update(t, m, tui.ExchangeDoneMsg{
		Out: recovery.Outcome{Err: &recovery.FlowError{Message: "otp_expired", Retryable: false}},
	})
	if !strings.Contains(m.View(), "expired or was already used") {
		t.Fatalf("expected the terminal error view, got:\n%s", m.View())
	}

	m, cmd := update(t, m, tui.LinkOpenedMsg{URL: "driftnote://reset?code=fresh999"})
	if cmd == nil {
		t.Error("expected an exchange command for the fresh link")
	}
	if !strings.Contains(m.View(), "Verifying recovery link") {
		t.Errorf("expected the fresh flow verifying, got:\n%s", m.View())
	}
}

func TestUpdate_SecondLinkAfterCompletedFlowStartsNewExchange(t *testing.T) {
	m := newAppModel(deeplink.Params{}, "driftnote://reset?code=first", false)
	m, _ = update(t, m, tui.ExchangeDoneMsg{})
	m, _ = update(t, m, tui.PasswordSavedMsg{})
	if !strings.Contains(m.View(), "Password updated.") {
		t.Fatalf("expected the completed flow view, got:\n%s", m.View())
	}

	m, cmd := update(t, m, tui.LinkOpenedMsg{URL: "driftnote://reset?code=second"})
	if cmd == nil {
		t.Error("expected an exchange command for the second link")
	}
	if !strings.Contains(m.View(), "Verifying recovery link") {
		t.Errorf("expected the fresh flow verifying, got:\n%s", m.View())
	}
	if strings.Contains(m.View(), "Password updated.") {
		t.Errorf("expected the stale success view gone, got:\n%s", m.View())
	}
}
