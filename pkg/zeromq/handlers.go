package zeromq

import (
	"encoding/json"
	"fmt"

	"github.com/open-teleop/go2bridge/pkg/config"
	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

// ConfigHandler answers CONFIG_REQUEST with the input configuration in effect.
type ConfigHandler struct {
	current func() *config.Config
	logger  customlog.Logger
}

// NewConfigHandler creates a new handler for configuration requests
func NewConfigHandler(current func() *config.Config, logger customlog.Logger) *ConfigHandler {
	return &ConfigHandler{
		current: current,
		logger:  logger,
	}
}

// HandleMessage processes a CONFIG_REQUEST message and returns a CONFIG_RESPONSE
func (h *ConfigHandler) HandleMessage(data []byte) ([]byte, error) {
	if err := expectType(data, MsgTypeConfigRequest); err != nil {
		return nil, err
	}

	cfg := h.current()
	if cfg == nil {
		return nil, fmt.Errorf("no input configuration loaded")
	}

	responseData, err := json.Marshal(NewMessage(MsgTypeConfigResponse, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	h.logger.Debugf("Sending configuration response (%d bytes)", len(responseData))
	return responseData, nil
}

// StatusHandler answers STATUS_REQUEST with a snapshot of link diagnostics.
type StatusHandler struct {
	snapshot func() interface{}
	logger   customlog.Logger
}

// NewStatusHandler creates a handler around a snapshot provider. The
// provider is called from the receiver goroutine and must be safe for that.
func NewStatusHandler(snapshot func() interface{}, logger customlog.Logger) *StatusHandler {
	return &StatusHandler{snapshot: snapshot, logger: logger}
}

func (h *StatusHandler) HandleMessage(data []byte) ([]byte, error) {
	if err := expectType(data, MsgTypeStatusRequest); err != nil {
		return nil, err
	}
	responseData, err := json.Marshal(NewMessage(MsgTypeStatusResponse, h.snapshot()))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	return responseData, nil
}

func expectType(data []byte, want string) error {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type != want {
		return fmt.Errorf("unexpected message type: %s", msg.Type)
	}
	return nil
}
