// Package migrations holds the postgres schema of the slot store.
package migrations

import _ "embed"

//go:embed 01_cart_slots.up.sql
var CartSlots string
