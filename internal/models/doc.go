// Package models defines the ledger entities for splitton.
//
// # Entities
//
//   - Event: a shared tab with a base currency, a roster of participants and
//     an ordered list of expenses
//   - Participant: a member of an event, optionally carrying a TON wallet
//     address used as the settlement destination
//   - Expense: an amount paid by one participant and shared equally by a
//     non-empty set of beneficiaries
//   - User: a registered account; its ID doubles as the participant ID
//   - SettlementRecord: the outcome of one executed transfer
//
// # Invariants
//
// Balances are never stored. They are recomputed from the expense list, so
// the only way to move a balance is to add, edit or delete an expense.
// Expenses and participants are removed logically (Deleted / IsActive) so
// history keeps resolving. Relationships use ID strings, never pointers.
//
// All timestamps are Unix milliseconds.
package models
