package main

import "github.com/google/uuid"

// resolveRunID returns explicit, or a freshly generated run identifier
// when the operator didn't pass --run-id, the same uuid.NewString()
// generate-an-id-when-none-given pattern the teacher uses for message and
// tool-call ids.
func resolveRunID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return "run-" + uuid.NewString()
}
