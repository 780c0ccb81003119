package repository

import "gorm.io/gorm"

// conn picks the transaction when one is given and falls back to the pool.
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
