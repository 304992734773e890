// Package mqtt is the optional broker path for stick reports. Sticks publish
// the same JSON body as the HTTP endpoint and receive commands on their own
// topic.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/service"
)

const (
	TelemetryFilter = "sticks/+/telemetry"
	qos             = 1
)

func CommandTopic(stickID string) string {
	return fmt.Sprintf("sticks/%s/command", stickID)
}

// StickFromTopic extracts the stick id from sticks/<id>/telemetry.
func StickFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "sticks" || parts[2] != "telemetry" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type Ingester interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (service.IngestResult, error)
}

type commandMessage struct {
	Command domain.Command `json:"command"`
}

type Server struct {
	client Client
	ingest Ingester
}

func NewServer(client Client, ingest Ingester) *Server {
	return &Server{client: client, ingest: ingest}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := s.client.Subscribe(ctx, TelemetryFilter, qos, s.handleTelemetry); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (s *Server) handleTelemetry(ctx context.Context, topic string, payload []byte) {
	stickID, ok := StickFromTopic(topic)
	if !ok {
		log.Warn("Ignoring message on malformed topic", "topic", topic)
		return
	}

	var req domain.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn("Ignoring malformed telemetry", "stickId", stickID, "error", err.Error())
		return
	}
	if req.StickID == "" {
		req.StickID = stickID
	}
	if req.StickID != stickID {
		log.Warn("Telemetry stickId does not match topic", "topic", topic, "stickId", req.StickID)
		return
	}

	res, err := s.ingest.Ingest(ctx, req)
	if errors.Is(err, service.ErrValidation) {
		log.Warn("Rejected telemetry", "stickId", stickID, "error", err.Error())
		return
	}
	if err != nil {
		log.Error(err, "Failed to ingest MQTT telemetry", "stickId", stickID)
		return
	}

	if res.Command == domain.CommandNone {
		return
	}
	body, _ := json.Marshal(commandMessage{Command: res.Command})
	if err := s.client.Publish(ctx, CommandTopic(stickID), qos, body); err != nil {
		log.Error(err, "Failed to publish command", "stickId", stickID, "command", string(res.Command))
	}
}
