package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crm-bridge/core"
)

// BridgeService is the mutating surface the commands delegate to.
type BridgeService interface {
	RegisterListener(ctx context.Context, registration core.ListenerRegistration) error
	UnregisterListener(ctx context.Context, listenerID string) error
	DispatchEnvelope(ctx context.Context, envelope core.ChangeEnvelope) ([]string, error)
	ValidateSsoToken(ctx context.Context, token string) (core.ExternalIdentity, error)
}

type RegisterListenerCommand struct {
	service BridgeService
}

func NewRegisterListenerCommand(service BridgeService) *RegisterListenerCommand {
	return &RegisterListenerCommand{service: service}
}

func (c *RegisterListenerCommand) Execute(ctx context.Context, msg RegisterListenerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: listener service is required")
	}
	return c.service.RegisterListener(ctx, msg.Registration)
}

type UnregisterListenerCommand struct {
	service BridgeService
}

func NewUnregisterListenerCommand(service BridgeService) *UnregisterListenerCommand {
	return &UnregisterListenerCommand{service: service}
}

func (c *UnregisterListenerCommand) Execute(ctx context.Context, msg UnregisterListenerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: listener service is required")
	}
	return c.service.UnregisterListener(ctx, msg.ListenerID)
}

type DispatchEnvelopeCommand struct {
	service BridgeService
}

func NewDispatchEnvelopeCommand(service BridgeService) *DispatchEnvelopeCommand {
	return &DispatchEnvelopeCommand{service: service}
}

// DispatchResult is what a dispatch command stores for its caller.
type DispatchResult struct {
	DeliveredListenerIDs []string
}

func (c *DispatchEnvelopeCommand) Execute(ctx context.Context, msg DispatchEnvelopeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	delivered, err := c.service.DispatchEnvelope(ctx, msg.Envelope)
	if err != nil {
		return err
	}
	storeResult(ctx, DispatchResult{DeliveredListenerIDs: delivered})
	return nil
}

type ValidateSsoTokenCommand struct {
	service BridgeService
}

func NewValidateSsoTokenCommand(service BridgeService) *ValidateSsoTokenCommand {
	return &ValidateSsoTokenCommand{service: service}
}

func (c *ValidateSsoTokenCommand) Execute(ctx context.Context, msg ValidateSsoTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sso service is required")
	}
	out, err := c.service.ValidateSsoToken(ctx, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
