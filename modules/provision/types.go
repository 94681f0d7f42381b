package provision

import "github.com/google/uuid"

// HandlerName is the job-type identifier the handler registers under.
const HandlerName = "provision"

// Stage tags the handler's progress in logs and metrics. Stages are
// observability metadata only; they never gate claiming or retries.
type Stage string

const (
	StageInitializing            Stage = "initializing"
	StageCreatingResource        Stage = "creating_resource"
	StageRegisteringDependencies Stage = "registering_dependencies"
	StageFinalizing              Stage = "finalizing"
)

// Payload describes one provisioning request. The path is idempotent per
// job: retries re-deliver the identical payload.
type Payload struct {
	ProjectID    uuid.UUID `json:"project_id"`
	DatabaseName string    `json:"database_name"`
	Services     []string  `json:"services,omitempty"`
}

// Project is the directory record provisioning runs against.
type Project struct {
	ID   uuid.UUID
	Name string
}
