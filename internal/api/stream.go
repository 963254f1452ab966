package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

const streamWriteTimeout = 10 * time.Second

// stream handles GET .../members/{member}/stream. It pushes each queued
// message as one text frame and acknowledges it once written. The stream
// ends when the participant is disconnected or the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	lock, member, err := s.withMember(r, func(_ *poker.Team, member *poker.Participant) error {
		member.UpdateActivity()
		return nil
	})
	if err != nil {
		handleError(w, s.logger, err)
		return
	}

	// Streams outlive the server's per-request deadlines
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	logger := s.logger.WithTeam(lock.Name()).With("member", member.Name())
	ctx := conn.CloseRead(context.Background())

	for {
		has, err := s.registry.WaitForMessage(ctx, lock, member, s.waitTimeout)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("message stream failed", "error", err)
			}
			return
		}
		if !has {
			// An open stream counts as activity even when nothing arrives.
			err = lock.Do(ctx, func(*poker.Team) error {
				member.UpdateActivity()
				return nil
			})
			if err != nil && errors.KindOf(err) != errors.KindTimeout {
				return
			}
			continue
		}

		var batch []poker.Message
		err = lock.Do(ctx, func(*poker.Team) error {
			batch = member.Messages()
			return nil
		})
		if err != nil {
			if errors.KindOf(err) == errors.KindTimeout {
				continue
			}
			return
		}
		if len(batch) == 0 {
			continue
		}

		for _, msg := range batch {
			if err := writeMessage(ctx, conn, msg); err != nil {
				logger.Debug("message stream closed", "error", err)
				return
			}
			if msg.Type == poker.MessageEmpty {
				conn.Close(websocket.StatusNormalClosure, "disconnected")
				return
			}
		}

		lastID := batch[len(batch)-1].ID
		err = lock.Do(ctx, func(*poker.Team) error {
			member.AcknowledgeMessages(lastID)
			member.UpdateActivity()
			return nil
		})
		if err != nil && errors.KindOf(err) != errors.KindTimeout {
			return
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg poker.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
