package chatclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsServer is a minimal chat-service stand-in: it accepts websocket upgrades
// on any path and hands the raw connection to the test.
type wsServer struct {
	srv    *httptest.Server
	connCh chan *serverConn
}

type serverConn struct {
	conn    *websocket.Conn
	path    string
	token   string
	inbound chan []byte
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := &wsServer{connCh: make(chan *serverConn, 4)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{
			conn:    conn,
			path:    r.URL.Path,
			token:   r.URL.Query().Get("token"),
			inbound: make(chan []byte, 16),
		}
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					close(sc.inbound)
					return
				}
				sc.inbound <- data
			}
		}()
		s.connCh <- sc
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) URL() string { return s.srv.URL }

func (s *wsServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-s.connCh:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for websocket connection")
		return nil
	}
}

// expectNoConn asserts no client dials in within the given window.
func (s *wsServer) expectNoConn(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case <-s.connCh:
		t.Fatal("unexpected websocket connection")
	case <-time.After(window):
	}
}

func (sc *serverConn) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	_ = sc.conn.WriteMessage(websocket.TextMessage, data)
}

func (sc *serverConn) sendRaw(data []byte) {
	_ = sc.conn.WriteMessage(websocket.TextMessage, data)
}

// closeWith performs a proper websocket close handshake with the given code.
func (sc *serverConn) closeWith(code int, reason string) {
	_ = sc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	time.Sleep(50 * time.Millisecond)
	_ = sc.conn.Close()
}

// drop kills the TCP connection without a close frame, simulating an
// abnormal network failure.
func (sc *serverConn) drop() {
	_ = sc.conn.Close()
}

// nextFrame returns the next frame the client sent, or fails the test.
func (sc *serverConn) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data, ok := <-sc.inbound:
		if !ok {
			t.Fatal("server connection closed while waiting for frame")
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshaling client frame: %v", err)
		}
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}
