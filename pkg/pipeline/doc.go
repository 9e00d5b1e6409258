/*
Package pipeline sequences a deployment's stages and owns its audit
trail.

A run moves through backup, fetch, orchestrate, and verify. The stages
differ in what failure means: backup can never fail the run, fetch
fails before the previous release is touched so there is nothing to
roll back, and orchestrate or verify failures leave a promoted but
broken release that gets torn down. The pipeline translates each
stage's typed error into the attempt's recorded outcome and leaves the
error itself intact for the CLI's exit code mapping.

Every invocation produces one DeploymentAttempt in the bbolt store,
one line in the plain-text deploy.log, and a refreshed Prometheus
textfile, regardless of outcome.
*/
package pipeline
