// Package server wires the websocket command channel: connection handshake,
// the per-session receive loop, file transfer and system commands.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/broadcast"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/capture"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/input"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/metrics"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/security"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/session"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/types"
)

const (
	readLimit    = 8 << 20 // 8MB
	readDeadline = 60 * time.Second
)

// Server handles viewer connections and their inbound messages.
type Server struct {
	cfg         *config.Config
	registry    *session.Registry
	engine      *capture.Engine
	broadcaster *broadcast.Broadcaster
	sec         *security.Manager
	metrics     *metrics.Metrics
	actuator    input.Actuator
	log         *logrus.Entry
	upgrader    websocket.Upgrader
}

// New wires the server to its collaborators.
func New(cfg *config.Config, registry *session.Registry, engine *capture.Engine, b *broadcast.Broadcaster, sec *security.Manager, m *metrics.Metrics, act input.Actuator) *Server {
	return &Server{
		cfg:         cfg,
		registry:    registry,
		engine:      engine,
		broadcaster: b,
		sec:         sec,
		metrics:     m,
		actuator:    act,
		log:         logrus.WithField("component", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WSMux returns the handler tree for the websocket listener.
func (s *Server) WSMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleWS)
	return mux
}

// HandleWS upgrades a viewer connection, sends the screen-size handshake
// and runs the session's receive loop until the transport dies.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Security.AuthRequired && r.URL.Query().Get("token") != s.cfg.Security.AuthToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.registry.Len() >= s.cfg.Server.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	sess := session.New(session.NewWSTransport(ws))
	log := s.log.WithFields(logrus.Fields{"session": sess.ID, "remote": sess.RemoteID()})
	log.Info("viewer connected")

	s.registry.Add(sess)
	s.metrics.ClientConnected()
	defer func() {
		s.registry.Remove(sess)
		_ = sess.Close()
		s.metrics.ClientDisconnected()
		log.Info("viewer disconnected")
	}()

	if err := s.sendHandshake(sess); err != nil {
		log.WithError(err).Warn("handshake failed")
		return
	}

	disp := input.NewDispatcher(s.actuator, s.cfg, s.broadcaster, log)
	defer disp.StopAutoClick()

	s.readLoop(ws, sess, disp, log)
}

func (s *Server) sendHandshake(sess *session.Session) error {
	w, h := s.engine.ScreenSize()
	payload, err := json.Marshal(types.ScreenSize{Type: "screen_size", Width: w, Height: h})
	if err != nil {
		return err
	}
	return sess.SendText(payload)
}

// readLoop classifies each inbound message. Per-message errors are logged
// and skipped; only a transport error ends the session.
func (s *Server) readLoop(ws *websocket.Conn, sess *session.Session, disp *input.Dispatcher, log *logrus.Entry) {
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("read loop closed")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))

		if msgType == websocket.BinaryMessage {
			if s.cfg.Features.EnableFileTransfer {
				s.handleFileTransfer(sess, msg, log)
			}
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.WithError(err).Warn("malformed message")
			continue
		}

		switch env.Type {
		case "control":
			disp.HandleControl(env)
		case "command":
			s.handleSystemCommand(sess, disp, env, log)
		case "ping":
			pong, _ := json.Marshal(types.Pong{Type: "pong"})
			if err := sess.SendText(pong); err != nil {
				log.WithError(err).Warn("pong send failed")
				return
			}
		default:
			log.Warnf("unknown message type %q", env.Type)
		}
	}
}

// handleSystemCommand covers session-level actions. Quality and FPS changes
// apply to the running capture loop immediately.
func (s *Server) handleSystemCommand(sess *session.Session, disp *input.Dispatcher, env types.Envelope, log *logrus.Entry) {
	switch env.Action {
	case "start_auto_click":
		disp.StartAutoClick()
	case "stop_auto_click":
		disp.StopAutoClick()
	case "set_quality":
		s.engine.Settings().SetJPEGQuality(env.Quality)
		log.Infof("jpeg quality set to %d", s.engine.Settings().JPEGQuality())
	case "set_fps":
		s.engine.Settings().SetMaxFPS(env.FPS)
		log.Infof("max fps set to %d", s.engine.Settings().MaxFPS())
	case "switch_monitor":
		if !s.cfg.Features.EnableMultiMonitor {
			log.Warn("multi-monitor is disabled by configuration")
			return
		}
		if s.engine.SwitchMonitor(env.Monitor) {
			// Re-announce the resolution of the newly active monitor.
			if err := s.sendHandshake(sess); err != nil {
				log.WithError(err).Warn("screen size update failed")
			}
		}
	default:
		log.Warnf("unknown system command %q", env.Action)
	}
}

// handleFileTransfer decrypts and decompresses an inbound upload and
// acknowledges with the recovered byte count.
func (s *Server) handleFileTransfer(sess *session.Session, data []byte, log *logrus.Entry) {
	payload, err := s.decodeUpload(data)
	if err != nil {
		log.WithError(err).Warn("file transfer failed")
		s.metrics.RecordError("file_transfer")
		ack, _ := json.Marshal(types.FileTransferAck{Type: "file_transfer", Status: "error", Message: err.Error()})
		if err := sess.SendText(ack); err != nil {
			log.WithError(err).Warn("file transfer nack failed")
		}
		return
	}

	log.Infof("received file transfer: %d bytes", len(payload))
	ack, _ := json.Marshal(types.FileTransferAck{Type: "file_transfer", Status: "success", Size: len(payload)})
	if err := sess.SendText(ack); err != nil {
		log.WithError(err).Warn("file transfer ack failed")
		return
	}
	s.broadcaster.BroadcastEvent(types.EventFileTransfer, map[string]any{"size": len(payload)})
}

func (s *Server) decodeUpload(data []byte) ([]byte, error) {
	data, err := s.sec.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt upload: %w", err)
	}
	if s.cfg.Performance.CompressionLevel > 0 {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompress upload: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress upload: %w", err)
		}
	}
	return data, nil
}
