package deeplink

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// The OS hands every driftnote:// activation to a fresh process. The first
// instance listens on a unix socket; later invocations forward their URL to
// it and exit, so link activations reach the screen that is already running.

const maxURLBytes = 8192

// Listener receives deep-link URLs forwarded by later process invocations.
type Listener struct {
	ln   net.Listener
	urls chan string
}

// DefaultSocketPath returns the default path for the single-instance socket.
func DefaultSocketPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "driftnote", "driftnote.sock")
}

// Listen starts accepting forwarded URLs on socketPath. A stale socket left
// by a crashed instance is removed and rebound; a socket with a live instance
// behind it is an error.
func Listen(socketPath string) (*Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		if conn, dialErr := net.DialTimeout("unix", socketPath, time.Second); dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("another instance is listening on %s", socketPath)
		}
		os.Remove(socketPath)
		ln, err = net.Listen("unix", socketPath)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
		}
	}
	l := &Listener{ln: ln, urls: make(chan string, 4)}
	go l.accept()
	return l, nil
}

// URLs returns the channel of forwarded activation URLs.
// It is closed when the listener shuts down.
func (l *Listener) URLs() <-chan string { return l.urls }

// Close stops the listener. The socket file is removed by the net package.
func (l *Listener) Close() error { return l.ln.Close() }

func (l *Listener) accept() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			close(l.urls)
			return
		}
		go l.receive(conn)
	}
}

func (l *Listener) receive(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := io.ReadAll(io.LimitReader(conn, maxURLBytes))
	if err != nil {
		return
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return
	}
	select {
	case l.urls <- raw:
	default:
		// receiver is wedged; dropping beats blocking the accept loop
	}
}

// Forward hands rawURL to an already-running instance. An error means no
// instance is listening and the caller should handle the URL itself.
func Forward(socketPath, rawURL string) error {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		return fmt.Errorf("no running instance: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(rawURL)); err != nil {
		return fmt.Errorf("forwarding link: %w", err)
	}
	return nil
}
