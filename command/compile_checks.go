package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RegisterListenerMessage]   = (*RegisterListenerCommand)(nil)
	_ gocmd.Commander[UnregisterListenerMessage] = (*UnregisterListenerCommand)(nil)
	_ gocmd.Commander[DispatchEnvelopeMessage]   = (*DispatchEnvelopeCommand)(nil)
	_ gocmd.Commander[ValidateSsoTokenMessage]   = (*ValidateSsoTokenCommand)(nil)
)
