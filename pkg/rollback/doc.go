/*
Package rollback tears down a release that failed its health gates.

On this host there is no prior version to restore: the old release was
stopped before the new one started, and the database volume carries
forward untouched. Rollback therefore stops and removes the broken
containers, captures each service's last log lines into a diagnostic
bundle, and leaves the host empty so the failure is visible rather
than masked by a half-running stack. Recovery is a new deployment with
a known-good tag.
*/
package rollback
