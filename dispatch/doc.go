// Package dispatch routes classified CRM events to registered listeners.
//
// Listener lookup completes and releases the registry before any delivery is
// attempted, so a slow or failing delivery cannot stall other dispatches or
// registry mutations. Delivery failures are isolated per listener and are
// never retried by the engine; the webhook surface dedupes re-deliveries
// through a claim lifecycle instead.
package dispatch
