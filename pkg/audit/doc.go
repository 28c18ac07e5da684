// Package audit records the activity log: one append-only Record per
// authorization decision or administrative change.
//
// # Writers
//
//   - DBWriter: PostgreSQL table activity_logs, with Search and Export for reporting
//   - FileWriter: newline-delimited JSON with size based rotation
//   - MultiWriter: synchronous fan-out to several writers
//   - NopWriter: discards everything
//
// No writer exposes an update or delete path.
//
// # Usage Example
//
//	w, err := audit.NewDBWriter(db)
//	if err != nil {
//		return err
//	}
//	err = w.Append(ctx, &audit.Record{
//		TenantID: "t-1",
//		UserID:   "u-1",
//		Action:   "update",
//		Resource: "users",
//		Status:   audit.StatusAllowed,
//		Details: audit.Details{
//			Before: map[string]interface{}{"role": "E"},
//			After:  map[string]interface{}{"role": "D"},
//		},
//	})
//
// Export supports JSON, NDJSON and CSV.
package audit
