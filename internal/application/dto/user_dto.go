package dto

import "github.com/shopspring/decimal"

// RegisterRequest alta de cuenta emisora + usuario administrador.
type RegisterRequest struct {
	AccountName string `json:"account_name"`
	TaxID       string `json:"tax_id"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
}

// LoginRequest credenciales de acceso.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse usuario en respuestas (sin hash de contraseña).
type UserResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

// LoginResponse token JWT + usuario autenticado.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// CreateOwnerRequest alta de propietario (cliente facturado).
type CreateOwnerRequest struct {
	Name                 string           `json:"name"`
	TaxID                string           `json:"tax_id"`
	Type                 string           `json:"type"` // INDIVIDUAL | COMPANY
	DefaultVatRate       *decimal.Decimal `json:"default_vat_rate"`
	DefaultRetentionRate *decimal.Decimal `json:"default_retention_rate"`
}

// OwnerResponse propietario en respuestas.
type OwnerResponse struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	TaxID                string          `json:"tax_id"`
	Type                 string          `json:"type"`
	DefaultVatRate       decimal.Decimal `json:"default_vat_rate"`
	DefaultRetentionRate decimal.Decimal `json:"default_retention_rate"`
}
