// Command chat_client is an interactive terminal client for circlechat. It
// logs in over REST, attaches to the live channel, and drives a
// session.Controller for one conversation: history fetch and live events are
// merged into a single view, and unseen partner messages are acknowledged
// automatically while the window is open.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/avelichko/circlechat-server/internal/proto"
	"github.com/avelichko/circlechat-server/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Printf("chat_client: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	username := flag.String("user", "", "username")
	password := flag.String("password", "", "password")
	partner := flag.String("partner", "", "partner user id")
	register := flag.Bool("register", false, "register instead of logging in")
	flag.Parse()

	if *username == "" || *password == "" || *partner == "" {
		return fmt.Errorf("-user, -password and -partner are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := &apiClient{base: *server, http: http.DefaultClient}

	token, err := api.authenticate(ctx, *username, *password, *register)
	if err != nil {
		return err
	}
	api.token = token

	self, err := selfID(token)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ws := &wsClient{conn: conn}
	if err := ws.join(ctx); err != nil {
		return err
	}

	ctrl := session.New(self, *partner, api, ws, nil)
	ctrl.OnChange = func(msgs []proto.Message) {
		render(self, msgs)
	}
	ctrl.Open(ctx)
	defer ctrl.Close()

	fmt.Printf("Chatting with %s. Type messages and press Enter. Ctrl+C to exit.\n", *partner)

	go func() {
		defer cancel()
		readEvents(ctx, conn, ctrl)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := api.send(ctx, *partner, text); err != nil {
			fmt.Printf("failed to send: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil
}

// readEvents feeds live channel events into the controller until the
// connection drops.
func readEvents(ctx context.Context, conn *websocket.Conn, ctrl *session.Controller) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return
		}

		switch outbound.Event {
		case proto.EventReceiveMessage:
			var msg proto.Message
			if err := json.Unmarshal(outbound.Data, &msg); err == nil {
				ctrl.HandleMessage(msg)
			}
		case proto.EventUpdateSeen:
			var data proto.UpdateSeenData
			if err := json.Unmarshal(outbound.Data, &data); err == nil {
				ctrl.HandleSeen(data.MessageIDs)
			}
		case proto.EventOnlineUsers:
			var data proto.OnlineUsersData
			if err := json.Unmarshal(outbound.Data, &data); err == nil {
				fmt.Printf("-- online: %s\n", strings.Join(data.Users, ", "))
			}
		default:
			if outbound.Error != nil {
				fmt.Printf("-- error: %s\n", outbound.Error.Msg)
			}
		}
	}
}

func render(self string, msgs []proto.Message) {
	fmt.Print("\033[2J\033[H")
	for _, m := range msgs {
		mark := " "
		if m.FromUserID == self {
			if m.Seen {
				mark = "✓✓"
			} else {
				mark = "✓"
			}
		}
		who := "them"
		if m.FromUserID == self {
			who = "me"
		}
		body := m.Text
		if m.MessageType == "image" {
			body = "[image] " + m.MediaURL
		}
		fmt.Printf("[%s] %-4s %s %s\n", m.CreatedAt.Local().Format("15:04:05"), who, body, mark)
	}
	fmt.Print("> ")
}

// apiClient wraps the REST endpoints; it also implements session.Fetcher.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (a *apiClient) authenticate(ctx context.Context, username, password string, register bool) (string, error) {
	path := "/api/login"
	if register {
		path = "/api/register"
	}
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := a.post(ctx, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("auth failed: %s", resp.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	return out.Token, nil
}

// History implements session.Fetcher over the REST history endpoint.
func (a *apiClient) History(ctx context.Context, partnerID string) ([]proto.Message, error) {
	body, _ := json.Marshal(map[string]string{"to_user_id": partnerID})
	resp, err := a.post(ctx, "/api/messages/get", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch failed: %s", resp.Status)
	}
	var out struct {
		Messages []proto.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out.Messages, nil
}

func (a *apiClient) send(ctx context.Context, to, text string) error {
	form := url.Values{}
	form.Set("to_user_id", to)
	form.Set("text", text)
	form.Set("message_type", "text")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/messages/send",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return nil
}

func (a *apiClient) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	return a.http.Do(req)
}

// wsClient speaks the channel protocol; it also implements session.Acker.
type wsClient struct {
	conn *websocket.Conn
}

func (w *wsClient) join(ctx context.Context) error {
	if err := wsjson.Write(ctx, w.conn, proto.Inbound{Type: proto.InboundTypeJoin}); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	return nil
}

// MarkSeen implements session.Acker over the live channel.
func (w *wsClient) MarkSeen(ctx context.Context, fromUserID, toUserID string) error {
	data, err := json.Marshal(proto.MarkSeenData{FromUserID: fromUserID, ToUserID: toUserID})
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, w.conn, proto.Inbound{Type: proto.InboundTypeMarkSeen, Data: data})
}

// selfID extracts the user id from the JWT payload without verifying it;
// the server already did.
func selfID(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode token payload: %w", err)
	}
	var claims struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parse token payload: %w", err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token has no user_id")
	}
	return claims.UserID, nil
}
