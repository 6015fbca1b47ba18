package search

import "github.com/dseinapp/dsein-server/internal/domain"

// UserDocument is the searchable projection of a directory user.
type UserDocument struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Banned      bool   `json:"banned"`
}

// NewUserDocument projects u into a search document.
func NewUserDocument(u *domain.User) *UserDocument {
	return &UserDocument{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Banned:      u.Banned,
	}
}

// ToMap converts the document to the field names used by the mapping.
func (d *UserDocument) ToMap() map[string]any {
	return map[string]any{
		"id":           d.ID,
		"username":     d.Username,
		"display_name": d.DisplayName,
		"banned":       d.Banned,
	}
}
