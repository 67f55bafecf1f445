package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/usecases"
)

const wsSendBuffer = 256

// wsCommand is sent from client to drive the replay.
type wsCommand struct {
	Action string  `json:"action"` // "play" | "pause" | "stop" | "speed" | "scrub" | "state"
	Speed  float64 `json:"speed"`
	Minute int     `json:"minute"`
}

// wsEvent is one bus event relayed to the client.
type wsEvent struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// WebSocketHandler returns a handler that relays a map view's bus events (replay frames,
// notices, visit and selection changes) to the client and accepts replay commands.
// Clients send JSON: {"action":"play"} or {"action":"scrub","minute":540}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := c.Params("id")
		v, err := deps.Maps.Get(id)
		if err != nil {
			_ = c.WriteJSON(map[string]string{"error": err.Error()})
			return
		}

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "map", id, "remote", remoteAddr)

		var mu sync.Mutex

		// Helper: thread-safe write
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// Bus delivery is synchronous on the publisher's goroutine (the frame loop for
		// replay frames), so events are queued and written by a separate goroutine.
		send := make(chan wsEvent, wsSendBuffer)
		var dropped atomic.Int64
		untap := v.Bus.Tap(func(ev events.Envelope) {
			select {
			case send <- wsEvent{Topic: ev.Topic, Payload: ev.Payload}:
			default:
				dropped.Add(1)
			}
		})

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				select {
				case ev := <-send:
					if err := writeJSON(ev); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Keep-alive ping
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		_ = writeJSON(map[string]any{"status": "connected", "map": id, "replay": v.Replay.State()})

		// Read client commands
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var cmd wsCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if err := handleReplayCommand(v, cmd); err != nil {
				_ = writeJSON(map[string]string{"error": err.Error(), "action": cmd.Action})
				continue
			}
			_ = writeJSON(map[string]any{"status": "ok", "action": cmd.Action, "replay": v.Replay.State()})
		}

		// Cleanup
		untap()
		close(done)
		wg.Wait()
		slog.Info("ws client disconnected", "map", id, "remote", remoteAddr, "dropped_events", dropped.Load())
	}
}

func handleReplayCommand(v *usecases.MapView, cmd wsCommand) error {
	switch cmd.Action {
	case "state":
		return nil
	case "speed":
		return v.Replay.SetSpeed(cmd.Speed)
	case "scrub":
		_, err := v.Replay.Scrub(cmd.Minute)
		return err
	default:
		return runReplayCommand(v, cmd.Action)
	}
}
