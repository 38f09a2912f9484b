package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-bridge/core"
)

const (
	TypeRegisterListener   = "bridge.command.listener.register"
	TypeUnregisterListener = "bridge.command.listener.unregister"
	TypeDispatchEnvelope   = "bridge.command.envelope.dispatch"
	TypeValidateSsoToken   = "bridge.command.sso.validate"
)

type RegisterListenerMessage struct {
	Registration core.ListenerRegistration
}

func (RegisterListenerMessage) Type() string { return TypeRegisterListener }

func (m RegisterListenerMessage) Validate() error {
	if strings.TrimSpace(m.Registration.ListenerID) == "" {
		return fmt.Errorf("command: listener id is required")
	}
	if len(core.NormalizeEventNames(m.Registration.EventNames)) == 0 {
		return fmt.Errorf("command: at least one event name is required")
	}
	if strings.TrimSpace(m.Registration.IdentifierValue) == "" {
		return fmt.Errorf("command: identifier value is required")
	}
	return nil
}

type UnregisterListenerMessage struct {
	ListenerID string
}

func (UnregisterListenerMessage) Type() string { return TypeUnregisterListener }

func (m UnregisterListenerMessage) Validate() error {
	if strings.TrimSpace(m.ListenerID) == "" {
		return fmt.Errorf("command: listener id is required")
	}
	return nil
}

type DispatchEnvelopeMessage struct {
	Envelope core.ChangeEnvelope
}

func (DispatchEnvelopeMessage) Type() string { return TypeDispatchEnvelope }

func (m DispatchEnvelopeMessage) Validate() error {
	if strings.TrimSpace(string(m.Envelope.Type)) == "" {
		return fmt.Errorf("command: envelope change type is required")
	}
	if strings.TrimSpace(m.Envelope.Table) == "" {
		return fmt.Errorf("command: envelope table is required")
	}
	return nil
}

type ValidateSsoTokenMessage struct {
	Token string
}

func (ValidateSsoTokenMessage) Type() string { return TypeValidateSsoToken }

func (m ValidateSsoTokenMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return fmt.Errorf("command: token is required")
	}
	return nil
}
