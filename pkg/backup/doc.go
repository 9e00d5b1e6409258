/*
Package backup implements the best-effort database snapshot taken before
each redeploy.

The agent execs mongodump inside the running database container and
archives the gzipped stream to a timestamped file in the backup
directory, indexing it in the store. Failure anywhere in that path is a
warning, never an error: an operator deploying for the first time, or
against an empty store, must not be blocked by the backup step.

Retention is applied only after a successful deployment: all but the
five most recent archives are removed.
*/
package backup
