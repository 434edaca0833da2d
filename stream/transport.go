package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/match"
	"github.com/kevigoci/musica/shazam"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20 // 8MB: large enough for several seconds of float32 PCM
)

type configMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sampleRate"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type songPayload struct {
	ID     uint32 `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type statusMessage struct {
	Status     string       `json:"status"`
	Duration   float64      `json:"duration,omitempty"`
	Song       *songPayload `json:"song,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// ServeWebSocket upgrades r into a websocket connection and drives one
// streaming recognition session over it until the session reaches a
// terminal state or the connection is lost. Grounded on the
// accept/ReadPump/WritePump split: one goroutine reads frames, the
// caller's goroutine runs the session's ticking/attempt loop and
// writes status messages.
func ServeWebSocket(w http.ResponseWriter, r *http.Request, store *catalog.Store, cfg shazam.Config, timing Timing, pool *Pool, matcher *match.Matcher, allowedOrigins []string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		log.Printf("[stream] accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := NewSession(store, cfg, timing, pool)

	stopped := make(chan struct{})
	go readLoop(ctx, conn, session, stopped)

	driveSession(ctx, conn, session, matcher, timing, stopped)
}

func readLoop(ctx context.Context, conn *websocket.Conn, session *Session, stopped chan struct{}) {
	defer close(stopped)

	configured := false
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageText:
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				continue
			}
			switch ctrl.Type {
			case "config":
				var cfgMsg configMessage
				if err := json.Unmarshal(data, &cfgMsg); err != nil {
					continue
				}
				if err := session.Configure(cfgMsg.SampleRate); err == nil {
					configured = true
				}
			case "stop":
				session.Stop()
				return
			}

		case websocket.MessageBinary:
			if !configured {
				continue
			}
			samples := decodeFloat32LE(data)
			if err := session.Ingest(samples); err != nil {
				return
			}
		}
	}
}

// decodeFloat32LE turns a little-endian 32-bit float PCM chunk into
// float64 samples for the shazam pipeline.
func decodeFloat32LE(data []byte) []float64 {
	n := len(data) / 4
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out
}

func driveSession(ctx context.Context, conn *websocket.Conn, session *Session, matcher *match.Matcher, timing Timing, stopped <-chan struct{}) {
	tick := time.NewTicker(time.Duration(timing.TickS * float64(time.Second)))
	defer tick.Stop()

	idleCheck := time.NewTicker(timing.IdleTimeout / 2)
	defer idleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-stopped:
			writeStatus(ctx, conn, finalStatus(session))
			return

		case <-idleCheck.C:
			if session.IdleExpired() {
				writeStatus(ctx, conn, statusMessage{Status: "error", Message: "idle timeout"})
				return
			}

		case <-tick.C:
			state := session.State()
			if state.Terminal() {
				writeStatus(ctx, conn, finalStatus(session))
				return
			}
			if state != Listening {
				continue
			}

			writeStatus(ctx, conn, statusMessage{Status: "listening", Duration: session.BufferedSeconds()})

			if session.ShouldAttempt() {
				writeStatus(ctx, conn, statusMessage{Status: "analyzing"})
				outcome, _ := session.Attempt(ctx, matcher)
				if outcome != nil {
					writeStatus(ctx, conn, outcomeStatus(*outcome))
					return
				}
			}
		}
	}
}

func finalStatus(session *Session) statusMessage {
	switch session.State() {
	case Matched:
		return statusMessage{Status: "match_found"}
	case NoMatch:
		return statusMessage{Status: "no_match", Message: "no match found"}
	default:
		return statusMessage{Status: "error", Message: "session terminated"}
	}
}

func outcomeStatus(o Outcome) statusMessage {
	switch o.State {
	case Matched:
		return statusMessage{
			Status:     "match_found",
			Confidence: o.Confidence,
			Song: &songPayload{
				ID:     o.Song.ID,
				Title:  o.Song.Title,
				Artist: o.Song.Artist,
			},
		}
	case NoMatch:
		return statusMessage{Status: "no_match", Message: o.Message}
	default:
		return statusMessage{Status: "error", Message: o.Message}
	}
}

func writeStatus(ctx context.Context, conn *websocket.Conn, msg statusMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	_ = conn.Write(writeCtx, websocket.MessageText, data)
}
