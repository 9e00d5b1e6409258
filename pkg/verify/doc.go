/*
Package verify is the external gate a release must pass after every
container already reports healthy.

The orchestrator's polling trusts the engine's view from inside the
host. The verifier does not: it probes each service the way a client
would, over the externally routed path. A database answers a ping
exec'd through the runtime, an API serves its health endpoint with a
JSON status body, a frontend serves its root page. Any probe failing
fails the deployment and triggers rollback, even though internal
health had passed.

Probes run once each. Startup flakiness is the poller's problem; by
the time the verifier runs, a failing probe is a real fault.
*/
package verify
