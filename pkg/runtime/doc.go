/*
Package runtime adapts the Docker Engine API to the narrow surface the
deployment pipeline needs.

The Runtime interface covers image pulls, container lifecycle with bounded
grace periods, typed health/status queries, log tails, and in-container
exec. DockerRuntime is the production implementation; it labels every
container it creates so a later invocation can address the same fleet by
fixed service names.

Status queries never parse textual output: ContainerHealth maps the
engine's inspect response onto the HealthStatus enum directly, and an
absent container is reported as unknown rather than as an error so the
first deployment onto an empty host takes the same path as a redeploy.
*/
package runtime
