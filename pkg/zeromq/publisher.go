package zeromq

import (
	"encoding/json"
	"time"

	"github.com/open-teleop/go2bridge/domain/teleop"
	"github.com/open-teleop/go2bridge/pkg/config"
	"github.com/open-teleop/go2bridge/pkg/connection"
	customlog "github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Telemetry topics
const (
	TopicRobotState         = "robot.state"
	TopicOperatorCommand    = "operator.command"
	TopicOperatorStatus     = "operator.status"
	TopicConfigNotification = "config.notification"
)

// Telemetry message types
const (
	MsgTypeRobotState    = "ROBOT_STATE"
	MsgTypeCommand       = "OPERATOR_COMMAND"
	MsgTypeStatus        = "OPERATOR_STATUS"
	MsgTypeConfigUpdated = "CONFIG_UPDATED"
)

// JSONPublisher is the part of Service the telemetry publisher needs.
type JSONPublisher interface {
	PublishJSON(topic string, messageType string, data interface{}) error
}

// CommandRecord is the payload of an operator.command message.
type CommandRecord struct {
	Source     string                   `json:"source"`
	Command    protocol.VelocityCommand `json:"command"`
	ActiveKeys []string                 `json:"active_keys,omitempty"`
	SentAtMs   int64                    `json:"sent_at_ms"`
}

// StatusRecord is the payload of an operator.status message.
type StatusRecord struct {
	State       string `json:"state"`
	URL         string `json:"url"`
	Attempts    int    `json:"attempts"`
	NextDelayMs int64  `json:"next_delay_ms"`
	Error       string `json:"error,omitempty"`
}

// NewStatusRecord flattens a connection status for JSON consumers.
func NewStatusRecord(st connection.Status) StatusRecord {
	rec := StatusRecord{
		State:       st.State.String(),
		URL:         st.URL,
		Attempts:    st.Attempts,
		NextDelayMs: st.NextDelay.Milliseconds(),
	}
	if st.Err != nil {
		rec.Error = st.Err.Error()
	}
	return rec
}

// TelemetryPublisher republishes accepted robot state frames, transmitted
// commands, link status and config changes for recorders and dashboards.
type TelemetryPublisher struct {
	bus    JSONPublisher
	logger customlog.Logger
}

// NewTelemetryPublisher creates a publisher on bus.
func NewTelemetryPublisher(bus JSONPublisher, logger customlog.Logger) *TelemetryPublisher {
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	return &TelemetryPublisher{bus: bus, logger: logger}
}

// PublishState forwards the frame exactly as the backend sent it.
func (p *TelemetryPublisher) PublishState(frame *protocol.StateFrame) error {
	var data interface{} = frame
	if len(frame.Raw) > 0 {
		data = json.RawMessage(frame.Raw)
	}
	return p.bus.PublishJSON(TopicRobotState, MsgTypeRobotState, data)
}

func (p *TelemetryPublisher) PublishCommand(ev teleop.CommandEvent) error {
	return p.bus.PublishJSON(TopicOperatorCommand, MsgTypeCommand, CommandRecord{
		Source:     string(ev.Source),
		Command:    ev.Command,
		ActiveKeys: ev.ActiveKeys,
		SentAtMs:   ev.Time.UnixMilli(),
	})
}

func (p *TelemetryPublisher) PublishStatus(st connection.Status) error {
	return p.bus.PublishJSON(TopicOperatorStatus, MsgTypeStatus, NewStatusRecord(st))
}

// PublishConfigUpdatedNotification announces a replaced input configuration.
func (p *TelemetryPublisher) PublishConfigUpdatedNotification(cfg *config.Config) error {
	p.logger.Infof("Publishing configuration update notification (ID: %s)", cfg.ConfigID)
	return p.bus.PublishJSON(TopicConfigNotification, MsgTypeConfigUpdated, map[string]interface{}{
		"config_id":    cfg.ConfigID,
		"version":      cfg.Version,
		"last_updated": cfg.LastUpdated,
		"published_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// RegisterHandlers installs the request handlers on service and returns a
// publisher bound to it.
func RegisterHandlers(service *Service, currentConfig func() *config.Config, status func() interface{}, logger customlog.Logger) *TelemetryPublisher {
	service.RegisterHandler(MsgTypeConfigRequest, NewConfigHandler(currentConfig, logger))
	service.RegisterHandler(MsgTypeStatusRequest, NewStatusHandler(status, logger))
	logger.Debugf("Registered request handlers and telemetry publisher")
	return NewTelemetryPublisher(service, logger)
}
