// Package websocket relays export progress to editors over socket.io.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"printdesign-server/core"
	"printdesign-server/export/orchestrator"
	"printdesign-server/handlers/auth"
)

const (
	EventJoin           = "join-design"
	EventJoinAck        = "join-design-ack"
	EventExportState    = "export-state"
	EventExportComplete = "export-complete"

	joinTimeout = 5 * time.Second
)

// RoomName is the socket.io room that receives a design's export events.
func RoomName(designID string) string {
	return "design:" + designID
}

// broadcaster sends one event to every socket in a room.
type broadcaster interface {
	Broadcast(room, event string, args ...any) error
}

type serverBroadcaster struct {
	srv *socketio.Server
}

func (b serverBroadcaster) Broadcast(room, event string, args ...any) error {
	return b.srv.To(socketio.Room(room)).Emit(event, args...)
}

// Relay turns orchestrator transitions into room broadcasts.
type Relay struct {
	out broadcaster
	log logrus.FieldLogger
}

func NewRelay(srv *socketio.Server) *Relay {
	return &Relay{out: serverBroadcaster{srv: srv}, log: logrus.StandardLogger()}
}

// Observer returns an orchestrator observer broadcasting to the design's room.
func (r *Relay) Observer(designID string) orchestrator.Observer {
	room := RoomName(designID)
	return orchestrator.ObserverFunc(func(e orchestrator.Event) {
		payload := map[string]any{
			"designId":   e.DesignID,
			"templateId": e.TemplateID,
			"viewId":     e.ViewID,
			"state":      string(e.State),
			"final":      e.State.Terminal(),
			"at":         e.At.UTC().Format(time.RFC3339Nano),
		}
		if e.Message != "" {
			payload["message"] = e.Message
		}
		if e.Code != "" {
			payload["code"] = string(e.Code)
		}
		if err := r.out.Broadcast(room, EventExportState, payload); err != nil {
			r.log.WithError(err).WithField("room", room).Warn("Failed to relay export state")
		}
	})
}

// Complete announces the end of an export session. Rendered images are left
// out; clients fetch them from the snapshot endpoint.
func (r *Relay) Complete(designID string, report orchestrator.Report) {
	views := make([]map[string]any, 0, len(report.Views))
	for _, v := range report.Views {
		view := map[string]any{
			"viewId": v.ViewID,
			"state":  string(v.State),
		}
		if v.Message != "" {
			view["message"] = v.Message
		}
		if v.Err != nil {
			view["code"] = string(v.Err.Code)
		}
		if v.Result != nil {
			view["strategy"] = v.Result.StrategyUsed
			view["pixelWidth"] = v.Result.PixelWidth
			view["pixelHeight"] = v.Result.PixelHeight
			view["degraded"] = v.Result.Degraded
		}
		if v.Receipt != nil {
			view["pngBlobRef"] = v.Receipt.Record.PNGBlobRef
		}
		views = append(views, view)
	}

	room := RoomName(designID)
	err := r.out.Broadcast(room, EventExportComplete, map[string]any{
		"designId":   designID,
		"templateId": report.TemplateID,
		"failed":     report.Failed,
		"views":      views,
	})
	if err != nil {
		r.log.WithError(err).WithField("room", room).Warn("Failed to relay export completion")
	}
}

// SetupSocketIO creates the socket.io server. Editors join a design's room by
// sending its id and their access token.
func SetupSocketIO(tokens *auth.Tokens, designs core.DesignStore, origins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigins(origins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		utils.Log().Printf("socket %v connected\n", socket.Id())

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On(EventJoin, func(datas ...any) {
			reply, args := splitAck(datas)
			designID, err := authorizeJoin(tokens, designs, args)
			if err != nil {
				replyJoin(socket, reply, map[string]any{
					"status": "error",
					"error":  err.Error(),
				})
				return
			}

			room := socketio.Room(RoomName(designID))
			socket.Join(room)
			utils.Log().Printf("socket %v joined %v\n", socket.Id(), room)
			replyJoin(socket, reply, map[string]any{
				"status": "ok",
				"room":   string(room),
			})
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

var errJoinArgs = errors.New("design id and token are required")

// authorizeJoin checks that the token is valid and its subject owns the
// design named in args.
func authorizeJoin(tokens *auth.Tokens, designs core.DesignStore, args []any) (string, error) {
	if len(args) < 2 {
		return "", errJoinArgs
	}
	designID, _ := args[0].(string)
	token, _ := args[1].(string)
	if designID == "" || token == "" {
		return "", errJoinArgs
	}
	if err := core.ValidateKey(designID); err != nil {
		return "", err
	}

	claims, err := tokens.Parse(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if _, err := designs.Get(ctx, claims.Subject, designID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("design %s not found", designID)
		}
		logrus.WithError(err).WithField("designId", designID).Error("Failed to look up design for join")
		return "", errors.New("design lookup failed")
	}
	return designID, nil
}

// corsOrigins turns configured origins into socket.io origin matchers. A
// trailing "*" matches any suffix.
func corsOrigins(origins []string) []any {
	out := make([]any, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, regexp.MustCompile(`.*`))
			continue
		}
		if len(o) > 0 && o[len(o)-1] == '*' {
			out = append(out, regexp.MustCompile("^"+regexp.QuoteMeta(o[:len(o)-1])+".*$"))
			continue
		}
		out = append(out, o)
	}
	return out
}
