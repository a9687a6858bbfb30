package database

import (
	"gorm.io/gorm"
)

// Limit caps the number of rows, falling back to def when n is not positive
// and clamping to max when max is positive
func Limit(n, def, max int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(ClampLimit(n, def, max))
	}
}

// ClampLimit normalises a requested page size
func ClampLimit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
