package users

import (
	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
)

// SummaryDTO is the public view of a buyer embedded in order responses.
type SummaryDTO struct {
	ID     uuid.UUID      `json:"id"`
	FName  string         `json:"fname"`
	LName  string         `json:"lname"`
	Email  string         `json:"email"`
	Mobile *string        `json:"mobile,omitempty"`
	Role   enums.UserRole `json:"role"`
}

// FromModel maps a user row into its summary.
func FromModel(u *models.User) *SummaryDTO {
	if u == nil {
		return nil
	}
	return &SummaryDTO{
		ID:     u.ID,
		FName:  u.FName,
		LName:  u.LName,
		Email:  u.Email,
		Mobile: u.Mobile,
		Role:   u.Role,
	}
}
