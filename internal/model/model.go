package model

// Package model contains domain models/data structures.
// Keep it free of business logic.

// Authentication is the result of checking a presumed owner against a document.
type Authentication struct {
	Match    bool   `json:"match"`
	Height   uint64 `json:"height"`
	Age      uint64 `json:"age"`
	Verified bool   `json:"verified"`
}

// StatusActive is the only status the registry reports.
const StatusActive = "active"

// Statistics summarizes registry state for the administrator.
type Statistics struct {
	Total  uint64 `json:"total"`
	Height uint64 `json:"height"`
	Status string `json:"status"`
}
