// Package server is the HTTP backend fronting the AI API: transcription,
// chat, speech synthesis and a realtime WebSocket proxy.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	log "log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// minUploadBytes rejects implausibly small uploads before they reach the
// transcription backend.
const minUploadBytes = 1000

type Server struct {
	engine Engine
	apiKey string
	app    *fiber.App
}

func New(engine Engine, apiKey string) *Server {
	s := &Server{
		engine: engine,
		apiKey: apiKey,
		app:    fiber.New(fiber.Config{DisableStartupMessage: true}),
	}

	s.app.Use(cors.New())

	api := s.app.Group("/api")
	api.Get("/", s.handleRoot)
	api.Post("/transcribe", s.handleTranscribe)
	api.Post("/chat", s.handleChat)
	api.Post("/chat/stream", s.handleChatStream)
	api.Post("/speak", s.handleSpeak)

	s.app.Use("/ws/realtime", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/realtime", websocket.New(s.handleRealtime))

	return s
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "murmur server is running"})
}

func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "file field is required")
	}

	f, err := fh.Open()
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "cannot read uploaded file")
	}

	reqID := uuid.NewString()
	contentType := fh.Header.Get("Content-Type")
	log.Info("Transcribe request", "id", reqID, "file", fh.Filename, "bytes", len(data), "type", contentType)

	if len(data) < minUploadBytes {
		return detail(c, fiber.StatusBadRequest,
			fmt.Sprintf("audio file too small (%d bytes), please record for longer", len(data)))
	}

	text, err := s.engine.Transcribe(c.Context(), data, fh.Filename, contentType)
	if err != nil {
		log.Error("Transcription failed", "id", reqID, "err", err)
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}

	if strings.TrimSpace(text) == "" {
		log.Warn("Empty transcription", "id", reqID)
		return detail(c, fiber.StatusBadRequest,
			"no speech detected in audio, please try speaking more clearly or longer")
	}

	log.Info("Transcribed", "id", reqID, "chars", len(text))
	return c.JSON(fiber.Map{"transcription": text})
}

type chatMessage struct {
	Text string `json:"text"`
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var msg chatMessage
	if err := c.BodyParser(&msg); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid JSON")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return detail(c, fiber.StatusBadRequest, "text field is required")
	}

	reply, err := s.engine.Chat(c.Context(), msg.Text)
	if err != nil {
		log.Error("Chat failed", "err", err)
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"response": reply})
}

func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var msg chatMessage
	if err := c.BodyParser(&msg); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid JSON")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return detail(c, fiber.StatusBadRequest, "text field is required")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	text := msg.Text
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// the request context is gone once the handler returns
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := s.engine.ChatStream(ctx, text, func(delta string) error {
			if err := writeEvent(w, map[string]string{"content": delta}); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			log.Error("Chat stream failed", "err", err)
			_ = writeEvent(w, map[string]string{"error": err.Error()})
			_ = w.Flush()
		}
	}))
	return nil
}

func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var msg chatMessage
	if err := c.BodyParser(&msg); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid JSON")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return detail(c, fiber.StatusBadRequest, "text field is required")
	}

	data, err := s.engine.Speak(c.Context(), msg.Text)
	if err != nil {
		log.Error("Synthesis failed", "err", err)
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename=speech.mp3`)
	return c.Send(data)
}

func writeEvent(w *bufio.Writer, payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// detail mirrors the {"detail": ...} error shape clients expect.
func detail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"detail": msg})
}
