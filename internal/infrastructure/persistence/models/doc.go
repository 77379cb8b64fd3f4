// Package models contains the GORM persistence models of the cashier
// backend. Domain aggregates carry no ORM tags; each model converts to and
// from its aggregate with ToDomain / FromDomain.
//
// Tables:
//   - orders: the order aggregate, lines and allocations as jsonb
//   - payments: payment transactions with their line selections
//   - debts: customer debts and their repayments
//   - tab_accounts, tab_movements: running tabs, movements append-only
//
// Money is stored as bigint minor units (the *_minor columns) everywhere
// outside jsonb documents.
package models
