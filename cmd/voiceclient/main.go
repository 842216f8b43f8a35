// Command voiceclient is a manual smoke-test client: it authenticates
// anonymously, opens the WebSocket, streams an audio file as base64 chunks,
// ends the stream, and prints every server event until interrupted.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const serverHost = "localhost:8080"

type authRequest struct {
	AnonymousID string `json:"anonymousId"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

func main() {
	audioPath := "sample_audio.wav"
	if len(os.Args) > 1 {
		audioPath = os.Args[1]
	}

	token, userID, err := authenticate()
	if err != nil {
		log.Fatal("Failed to authenticate:", err)
	}
	log.Printf("Authenticated as anonymous user %s", userID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: serverHost, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			log.Printf("recv: %s", message)
		}
	}()

	sessionID := uuid.NewString()
	conversationID := uuid.NewString()

	send(c, map[string]interface{}{
		"type":           "start-stream",
		"userId":         userID,
		"conversationId": conversationID,
		"sessionId":      sessionID,
	})

	if err := streamAudioFile(c, audioPath); err != nil {
		log.Println("stream:", err)
	}

	send(c, map[string]interface{}{
		"type":      "end-stream",
		"sessionId": sessionID,
	})

	select {
	case <-interrupt:
	case <-time.After(30 * time.Second):
	}

	send(c, map[string]interface{}{
		"type":           "end-conversation",
		"conversationId": conversationID,
	})

	c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func authenticate() (token, userID string, err error) {
	body, _ := json.Marshal(authRequest{AnonymousID: uuid.NewString()})
	resp, err := http.Post(
		fmt.Sprintf("http://%s/api/v1/auth/anonymous", serverHost),
		"application/json",
		bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("auth failed: %s: %s", resp.Status, data)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", "", err
	}
	return auth.Token, auth.UserID, nil
}

// streamAudioFile sends the file in 8KB base64 chunks, pacing them roughly
// like a live microphone feed.
func streamAudioFile(c *websocket.Conn, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	const chunkSize = 8 * 1024
	totalChunks := (len(data) + chunkSize - 1) / chunkSize
	log.Printf("streaming %s: %d bytes in %d chunks", path, len(data), totalChunks)

	for i := 0; i < totalChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}

		send(c, map[string]interface{}{
			"type":       "audio-chunk",
			"chunk":      base64.StdEncoding.EncodeToString(data[start:end]),
			"chunkIndex": i,
			"isFinal":    i == totalChunks-1,
		})

		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func send(c *websocket.Conn, event map[string]interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Println("marshal:", err)
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Println("write:", err)
	}
}
