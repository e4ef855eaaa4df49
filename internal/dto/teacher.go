package dto

// CreateTeacherRequest registers an instructor with the school.
type CreateTeacherRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	FullName string `json:"full_name" validate:"omitempty,max=120"`
}
