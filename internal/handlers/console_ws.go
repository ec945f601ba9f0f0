package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"mcpanel/internal/console"
	"mcpanel/internal/models"
	"mcpanel/internal/service"
)

const consoleReadLimit = 32768

// ConsoleStream serves the console over a WebSocket. It is one more drain
// consumer: lines it pushes are not seen by HTTP pollers, and vice versa.
// Clients may send {"command": "..."} messages, which go to the server's stdin.
type ConsoleStream struct {
	sv       *service.Supervisor
	queue    *console.Queue
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewConsoleStream(sv *service.Supervisor, queue *console.Queue, log *zap.SugaredLogger) *ConsoleStream {
	return &ConsoleStream{
		sv:       sv,
		queue:    queue,
		interval: sv.PollInterval(),
		log:      log,
	}
}

func (cs *ConsoleStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		cs.log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	conn.SetReadLimit(consoleReadLimit)
	cs.log.Debug("accepted console WebSocket conn")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go cs.readCommands(ctx, cancel, conn)

	err = cs.pushLines(ctx, conn)
	if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
		cs.log.Debugw("console WebSocket closed", "Error", err)
		return
	}
	cs.log.Debugf("console WebSocket write error: %s", err)
	conn.Close(websocket.StatusInternalError, "write failed")
}

func (cs *ConsoleStream) pushLines(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		lines := cs.queue.DrainAvailable()
		if len(lines) == 0 {
			continue
		}
		if err := wsjson.Write(ctx, conn, models.ConsoleLines{Lines: lines}); err != nil {
			return err
		}
	}
}

func (cs *ConsoleStream) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		var msg models.CommandRequest
		err := wsjson.Read(ctx, conn, &msg)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if err != nil {
			cs.log.Debugf("console WebSocket read error: %s", err)
			return
		}

		if err := cs.sv.SendCommand(msg.Command); err != nil {
			if werr := wsjson.Write(ctx, conn, models.ConsoleLines{Lines: []string{}, Error: err.Error()}); werr != nil {
				cs.log.Debugf("error replying to command: %s", werr)
				return
			}
		}
	}
}
