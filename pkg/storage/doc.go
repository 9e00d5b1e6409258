/*
Package storage persists stevedore's audit state in an embedded BoltDB
database.

Two buckets are kept: deployment attempts (append-only, timestamp-keyed)
and the backup record index that the retention policy prunes against.
Values are JSON-encoded domain types. The store lives in the data
directory alongside the plain-text audit log; no external database is
required on the deployment host.
*/
package storage
