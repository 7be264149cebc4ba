package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/stores"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketWriter serializes writes to a websocket connection. Step fanout
// and the final result arrive from different goroutines, and gorilla
// connections allow only one concurrent writer.
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

func (w *WebSocketWriter) WriteStep(runID string, step aiq.IntermediateStep) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(gin.H{
		"type":   "intermediate_data",
		"run_id": runID,
		"step":   step,
	})
}

func (w *WebSocketWriter) WriteComplete(runID, output string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(gin.H{
		"type":   "system_response_complete",
		"run_id": runID,
		"output": output,
	})
}

func (w *WebSocketWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(gin.H{"type": "error", "error": message})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	logger := log.New(os.Stdout, fmt.Sprintf("[WS %s] ", sessionID), log.LstdFlags)
	logger.Println("Session opened")

	writer := &WebSocketWriter{Conn: conn, Logger: logger}

	for {
		var req GenerateRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Printf("Unexpected close: %v", err)
			}
			logger.Println("Session closed")
			return
		}
		if req.InputMessage == "" {
			if err := writer.WriteError("input_message is required"); err != nil {
				return
			}
			continue
		}

		s.runWebsocketRequest(c, writer, logger, req)
	}
}

func (s *Server) runWebsocketRequest(c *gin.Context, writer *WebSocketWriter, logger *log.Logger, req GenerateRequest) {
	runID := uuid.New().String()
	logger.Printf("Run %s: %q", runID, req.InputMessage)

	if s.store != nil {
		err := s.store.CreateRun(&stores.Run{
			RunID:            runID,
			Channel:          "ws",
			Input:            req.InputMessage,
			UseKnowledgeBase: req.UseKnowledgeBase,
			Status:           "running",
			StartedAt:        time.Now(),
		})
		if err != nil {
			logger.Printf("Warning: failed to record run: %v", err)
		}
	}

	stepsChan, resultChan := s.workflow.Run_Stream(c.Request.Context(), req.InputMessage, req.UseKnowledgeBase)

	var collected []aiq.IntermediateStep
	for step := range stepsChan {
		collected = append(collected, step)
		if err := writer.WriteStep(runID, step); err != nil {
			logger.Printf("Write failed, draining run: %v", err)
			for range stepsChan {
			}
			break
		}
	}

	result := <-resultChan
	s.recordRunEnd(runID, result.Output, collected, result.Err)
	if result.Err != nil {
		logger.Printf("Workflow failed: %v", result.Err)
		if err := writer.WriteError(result.Err.Error()); err != nil {
			logger.Printf("Failed to send error: %v", err)
		}
		return
	}

	if err := writer.WriteComplete(runID, result.Output); err != nil {
		logger.Printf("Failed to send completion: %v", err)
	}
}
