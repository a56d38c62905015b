package auth

import (
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

func randomUserID(string, string) (uuid.UUID, error) {
	return uuid.NewRandom()
}

// hashedUserID derives a stable id so the same tenant and email always
// map to the same user id across environments
func hashedUserID(tenantID, email string) (uuid.UUID, error) {
	return hashid.NewUUID(tenantID + ":" + email)
}
