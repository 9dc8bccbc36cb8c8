package domain

import "time"

type User struct {
	UserID    string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateUserRequest struct {
	Name  string `json:"name"  binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type UpdateUserRequest struct {
	Name  *string `json:"name"  binding:"omitempty,min=1"`
	Email *string `json:"email" binding:"omitempty,email"`
}

func (r UpdateUserRequest) Empty() bool {
	return r.Name == nil && r.Email == nil
}

type UserPage struct {
	Items      []User `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
