// Package mysql archives generated plans and tips. The file-backed
// repository is the development default; the SQL repository is used when a
// MySQL DSN is configured. The archive is write-behind the request path:
// a failed save is logged but never fails a request that already committed
// its conversation turns.
package mysql
