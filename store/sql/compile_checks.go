package sqlstore

import "github.com/goliatone/go-crm-bridge/core"

var _ core.ListenerStore = (*ListenerStore)(nil)
