package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

const writeWait = 10 * time.Second

func (s *Server) publishHandler(writer http.ResponseWriter, request *http.Request) {
	roomID := chi.URLParam(request, "roomID")
	rawdata, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, maxMessageSize))
	if err != nil {
		utils.WriteErrorResponse(s.Logger, writer, err, http.StatusBadRequest)
		return
	}
	msg := &wire.Message{}
	if err := json.Unmarshal(rawdata, msg); err != nil {
		utils.WriteErrorResponse(s.Logger, writer, errors.Wrap(err, "failed to unmarshal message"), http.StatusBadRequest)
		return
	}
	if msg.RoomID != roomID {
		utils.WriteErrorResponse(s.Logger, writer, fmt.Errorf("message for room %q posted to room %q", msg.RoomID, roomID), http.StatusBadRequest)
		return
	}
	if err := s.Hub.Publish(roomID, msg); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrMaxRooms) {
			status = http.StatusServiceUnavailable
		}
		utils.WriteErrorResponse(s.Logger, writer, err, status)
		return
	}
	s.Logger.Debug("relayed message",
		zap.String("room", roomID),
		zap.Uint16("from", msg.From),
		zap.Uint16("round", msg.Round),
		zap.Stringer("type", msg.Type))
	writer.WriteHeader(http.StatusOK)
}

func (s *Server) subscribeHandler(writer http.ResponseWriter, request *http.Request) {
	roomID := chi.URLParam(request, "roomID")
	incoming, cancel, err := s.Hub.Subscribe(roomID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrMaxRooms) {
			status = http.StatusServiceUnavailable
		}
		utils.WriteErrorResponse(s.Logger, writer, err, status)
		return
	}
	defer cancel()
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.Logger.Error("failed to upgrade subscription", zap.String("room", roomID), zap.Error(err))
		return
	}
	defer conn.Close()
	logger := s.Logger.With(zap.String("room", roomID), zap.String("ip", request.RemoteAddr))
	logger.Debug("👂 subscriber joined")

	// the read side only detects the peer closing the stream
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-gone:
			logger.Debug("subscriber left")
			return
		case msg, ok := <-incoming:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("failed to write to subscriber", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) healthHandler(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusOK)
	if _, err := writer.Write([]byte(fmt.Sprintf(`{"rooms": %d}`, s.Hub.Rooms()))); err != nil {
		s.Logger.Error("error writing health_check response: " + err.Error())
	}
}
