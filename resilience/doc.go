// Package resilience retries operations that fail transiently, such as
// opening a database file that another test process still holds locked.
//
//	db, err := resilience.Retry(ctx, resilience.Backoff{Attempts: 3}, func() (*gorm.DB, error) {
//	    return gorm.Open(dialector, cfg)
//	})
//
// Errors wrapped with Permanent stop the loop immediately.
package resilience
