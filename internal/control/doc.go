// Package control implements the Control Surface (C8): it dispatches the
// external command set (spec §6.1) onto the Recording and Preview
// Services, enforcing idempotence, the protection window, and exclusivity
// ordering between the two services.
package control
