/*
Package types defines the core data structures used throughout stevedore.

This package contains the domain model for health-gated deployments: service
specifications, release descriptors, health states, backup records, and the
audit record for each deployment attempt, plus the typed error taxonomy the
pipeline dispatches on.

# Core Types

Release Composition:
  - ServiceSpec: One deployable service, its image, ports, volumes, and
    both health contracts (container-internal check and external probe)
  - ReleaseDescriptor: Immutable versioned set of services deployed together,
    with the required-healthy count gate
  - ServiceRole: database, backend, or frontend

Health:
  - HealthStatus: unknown, starting, healthy, unhealthy. Produced only by
    querying the container runtime; never set directly by the orchestrator.

Audit:
  - BackupRecord: One archived database dump (retained set is pruned after
    successful deployments)
  - DeploymentAttempt: Immutable outcome record for one invocation

Errors:
  - ConfigurationError: Missing required configuration (pre-flight, fatal)
  - FetchError: Image pull failure (fatal, no rollback needed)
  - OrchestrationTimeout: Polling ceiling reached (fatal, triggers rollback)
  - HealthCheckError: External probe failed post-promotion (fatal, triggers
    rollback even though internal health passed)

All types are plain data, serializable as JSON for the bbolt store and as
YAML for the deployment manifest.
*/
package types
