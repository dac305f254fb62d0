// Package core is the service facade over the transfer engine. It wires a
// persistent store, the default rules and the observability hooks around
// every operation, and provides the seeding helpers used by the CLI.
package core

import "stancore/pkg/domain"

type (
	// Clock aliases domain.Clock.
	Clock = domain.Clock
	// ClockFunc aliases domain.ClockFunc.
	ClockFunc = domain.ClockFunc
	// Result aliases domain.Result returned by store transactions.
	Result = domain.Result
)
