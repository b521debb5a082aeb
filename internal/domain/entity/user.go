package entity

import "time"

// Roles de usuario de la API.
const (
	RoleAdmin  = "admin"
	RoleGestor = "gestor"
)

// User usuario de la aplicación, pertenece a una cuenta emisora.
type User struct {
	ID           string
	AccountID    string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
