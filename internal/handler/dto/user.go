// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/starterkit/starterkit/internal/model"
)

// CreateUserRequest represents the request body for creating a user.
// Only the email is accepted; id and created_at are assigned by storage.
type CreateUserRequest struct {
	Email string `json:"email"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserListResponse represents a paginated list of users.
type UserListResponse struct {
	Data       []UserResponse `json:"data"`
	Pagination *Pagination    `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToUserResponse converts a User model to UserResponse DTO.
func ToUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

// ToUserListResponse converts a slice of User models to UserListResponse.
func ToUserListResponse(users []*model.User, nextCursor string, hasMore bool) *UserListResponse {
	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = *ToUserResponse(user)
	}
	return &UserListResponse{
		Data: responses,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    hasMore,
		},
	}
}
