package dbx

import "strings"

// SQLiteDSN turns a database file path into a modernc.org/sqlite DSN tuned
// for concurrent writers: transactions start with BEGIN IMMEDIATE, busy
// writers wait instead of failing, WAL is on and foreign keys are enforced.
// A DSN that already carries query parameters is returned unchanged.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_txlock=immediate" +
		"&_pragma=busy_timeout(10000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
}
