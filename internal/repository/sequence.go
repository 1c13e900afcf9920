package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// nextNumber returns PREFIX-YYYYMMDD-NNNNN for the given table/column.
// On postgres it takes a transaction-scoped advisory lock so concurrent callers never share a number.
func nextNumber(ctx context.Context, rootDB *gorm.DB, table, column, prefix string) (string, error) {
	db := GetDB(ctx, rootDB)
	datePrefix := prefix + "-" + time.Now().Format("20060102") + "-"

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", datePrefix).Error; err != nil {
			return "", err
		}
	}

	var count int64
	if err := db.Table(table).
		Where(column+" LIKE ?", datePrefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", datePrefix, count+1), nil
}
