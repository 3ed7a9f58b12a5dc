// Package domain implements the goal-matching and progress-accumulation
// engine for sale events.
//
// Each new sale is matched against every active goal's eligibility
// criteria; eligible sales advance a per-(user, goal) progress record, and
// the first time a record crosses the goal target the user is awarded the
// goal's reward points. Accumulation is additive and order-independent,
// and every mutation path checks the completed terminal state first so the
// pipeline stays correct under at-least-once event delivery.
package domain
