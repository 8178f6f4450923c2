// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/clarityvalue/clarity/services/analysis"
	"github.com/clarityvalue/clarity/services/analysis/datatypes"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the surrounding application's
		// gateway; this core service trusts its internal network.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleAnalysisWebSocket streams result updates for one analysis id to
// a websocket client. The connection closes after the terminal update.
func HandleAnalysisWebSocket(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		analysisID := c.Param("id")

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("websocket subscriber connected", "analysis_id", analysisID)

		terminal := make(chan struct{})
		unsubscribe := engine.SubscribeToUpdates(analysisID,
			func(result *datatypes.AnalysisResult) {
				if err := ws.WriteJSON(result); err != nil {
					slog.Warn("websocket write failed",
						"analysis_id", analysisID, "error", err)
					return
				}
				if result.Status.Terminal() {
					close(terminal)
				}
			})
		defer unsubscribe()

		// Detect client hangup; updates flow through the subscription.
		disconnected := make(chan struct{})
		go func() {
			defer close(disconnected)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case <-terminal:
		case <-disconnected:
		case <-c.Request.Context().Done():
		}
		slog.Info("websocket subscriber disconnected", "analysis_id", analysisID)
	}
}
