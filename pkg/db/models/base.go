package models

import "github.com/google/uuid"

// ensureID assigns a generated UUID when the primary key is unset, so the
// models work identically on Postgres and the sqlite driver used in tests.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
