// Package provision implements the multi-stage provisioning job handler.
//
// A provisioning job resolves its project, creates the project database,
// registers the project's services with downstream systems and finalizes.
// Progress is reported through the stages
//
//	initializing -> creating_resource -> registering_dependencies -> finalizing
//
// emitted as structured logs and metrics only. Stages are not part of the
// queue's job lifecycle and never influence claiming or retries.
//
// Failures are classified into a fixed taxonomy (Class). Permission and
// quota failures and missing prerequisite entities are fatal; network
// errors, timeouts and failed downstream calls are retryable. The handler
// wraps every error accordingly so the worker applies the right policy.
//
// # Usage
//
//	svc := provision.NewService(directory, provisioner, registrar)
//	registry.Register(svc.Handler())
//
//	queue.Enqueue(ctx, provision.Payload{
//	    ProjectID:    projectID,
//	    DatabaseName: "app_main",
//	    Services:     []string{"billing", "mailer"},
//	}, queue.WithJobName(provision.HandlerName))
package provision
