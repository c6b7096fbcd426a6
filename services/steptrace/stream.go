// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package steptrace

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait   = 10 * time.Second
	streamReadLimit   = 8 << 20
	streamBufferBytes = 64 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  streamBufferBytes,
	WriteBufferSize: streamBufferBytes,
}

// HandleStream handles GET /v1/steptrace/stream.
//
// Description:
//
//	Upgrades to a WebSocket. Each client message is a CodeRequest; the
//	server answers with one "step" message per recorded step followed by
//	a "done" message, or a single "error" message. The connection stays
//	open for further requests until the client closes it.
func (h *Handlers) HandleStream(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStream")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(streamReadLimit)
	// Clients idle between traces; drop the server read timeout.
	_ = ws.SetReadDeadline(time.Time{})
	logger.Info("stream client connected")

	ctx := c.Request.Context()
	for {
		var req CodeRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("stream read ended", slog.String("error", err.Error()))
			}
			return
		}

		// The upgrade passed RateLimit once; each trace on the open
		// connection draws from the same bucket.
		if !h.svc.Allow() {
			rejectedTotal.WithLabelValues("rate_limited").Inc()
			if err := send(ws, StreamMessage{Type: StreamError, Error: rateLimitedMessage}); err != nil {
				return
			}
			continue
		}

		if err := h.validateRequest(&req); err != nil {
			if sendErr := send(ws, streamError(err)); sendErr != nil {
				return
			}
			continue
		}

		res, err := h.svc.Trace(ctx, []byte(req.Code))
		if err != nil {
			requestsTotal.WithLabelValues("stream", "rejected").Inc()
			if sendErr := send(ws, streamError(err)); sendErr != nil {
				return
			}
			continue
		}

		if !res.Success {
			requestsTotal.WithLabelValues("stream", string(res.ErrorKind)).Inc()
			msg := StreamMessage{
				Type:      StreamError,
				TraceID:   res.TraceID,
				Stdout:    res.Stdout,
				Error:     res.Error,
				Traceback: res.Traceback,
				ErrorKind: string(res.ErrorKind),
			}
			if err := send(ws, msg); err != nil {
				return
			}
			continue
		}

		requestsTotal.WithLabelValues("stream", "success").Inc()
		for i := range res.Steps {
			if err := send(ws, StreamMessage{Type: StreamStep, Index: i, Step: res.Steps[i]}); err != nil {
				logger.Debug("stream client went away mid-trace", slog.Int("sent", i))
				return
			}
		}
		done := StreamMessage{
			Type:       StreamDone,
			TraceID:    res.TraceID,
			Steps:      len(res.Steps),
			Stdout:     res.Stdout,
			DurationMS: res.DurationMS,
		}
		if err := send(ws, done); err != nil {
			return
		}
	}
}

func streamError(err error) StreamMessage {
	msg := StreamMessage{Type: StreamError, Error: err.Error()}
	if errors.Is(err, ErrEmptySource) {
		msg.Error = noCodeMessage
	}
	return msg
}

func send(ws *websocket.Conn, msg StreamMessage) error {
	if err := ws.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	if err := ws.WriteJSON(msg); err != nil {
		slog.Debug("websocket write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
