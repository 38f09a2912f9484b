package bridge

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	"github.com/goliatone/go-crm-bridge/adapters/gocommand"
	"github.com/goliatone/go-crm-bridge/command"
)

// Commands groups the mutating command handlers built over one service.
type Commands struct {
	RegisterListener   *command.RegisterListenerCommand
	UnregisterListener *command.UnregisterListenerCommand
	DispatchEnvelope   *command.DispatchEnvelopeCommand
	ValidateSsoToken   *command.ValidateSsoTokenCommand
}

// Facade exposes the bridge to go-command hosts: it constructs the command
// handlers and can subscribe them to the dispatcher in one call.
type Facade struct {
	service  command.BridgeService
	commands Commands
}

func NewFacade(service command.BridgeService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("bridge: service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			RegisterListener:   command.NewRegisterListenerCommand(service),
			UnregisterListener: command.NewUnregisterListenerCommand(service),
			DispatchEnvelope:   command.NewDispatchEnvelopeCommand(service),
			ValidateSsoToken:   command.NewValidateSsoTokenCommand(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() command.BridgeService {
	if f == nil {
		return nil
	}
	return f.service
}

// Subscribe registers every command with the registry adapter and the global
// dispatcher. On partial failure the subscriptions made so far are torn down.
func (f *Facade) Subscribe(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("bridge: facade is not configured")
	}
	var subscriptions []commanddispatcher.Subscription
	fail := func(err error) ([]commanddispatcher.Subscription, error) {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
		return nil, err
	}

	sub, err := gocommand.RegisterAndSubscribe(adapter, f.commands.RegisterListener, runnerOpts...)
	if err != nil {
		return fail(err)
	}
	subscriptions = append(subscriptions, sub)

	sub, err = gocommand.RegisterAndSubscribe(adapter, f.commands.UnregisterListener, runnerOpts...)
	if err != nil {
		return fail(err)
	}
	subscriptions = append(subscriptions, sub)

	sub, err = gocommand.RegisterAndSubscribe(adapter, f.commands.DispatchEnvelope, runnerOpts...)
	if err != nil {
		return fail(err)
	}
	subscriptions = append(subscriptions, sub)

	sub, err = gocommand.RegisterAndSubscribe(adapter, f.commands.ValidateSsoToken, runnerOpts...)
	if err != nil {
		return fail(err)
	}
	subscriptions = append(subscriptions, sub)

	return subscriptions, nil
}
