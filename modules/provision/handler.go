package provision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// ProjectDirectory resolves the project a provisioning job belongs to.
type ProjectDirectory interface {
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
}

// DatabaseProvisioner creates the project's database resource.
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, projectID uuid.UUID, name string) error
}

// ServiceRegistrar registers the project's services with downstream systems.
type ServiceRegistrar interface {
	RegisterService(ctx context.Context, projectID uuid.UUID, service string) error
}

// Service runs multi-stage provisioning jobs. Each stage transition is
// emitted as a log record and a metric labelled by stage.
type Service struct {
	directory   ProjectDirectory
	provisioner DatabaseProvisioner
	registrar   ServiceRegistrar
	log         *slog.Logger
}

// Option configures the provisioning service.
type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(directory ProjectDirectory, provisioner DatabaseProvisioner, registrar ServiceRegistrar, opts ...Option) *Service {
	s := &Service{
		directory:   directory,
		provisioner: provisioner,
		registrar:   registrar,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler wraps the service as a queue handler registered under HandlerName.
func (s *Service) Handler() queue.Handler {
	return queue.NewNamedJobHandler(HandlerName, s.Provision)
}

// Provision runs the provisioning stages for one payload. Errors are
// classified into the failure taxonomy so the worker can decide between
// retry and terminal failure.
func (s *Service) Provision(ctx context.Context, payload Payload) error {
	if payload.ProjectID == uuid.Nil {
		// A payload without a project cannot succeed on any attempt.
		return queue.Fatal(&Error{
			Class: ClassEntityNotFound,
			Stage: StageInitializing,
			Err:   errors.New("payload has no project id"),
		})
	}

	log := s.log.With(slog.String("project_id", payload.ProjectID.String()))

	s.emitStage(log, StageInitializing)
	project, err := s.directory.GetProject(ctx, payload.ProjectID)
	if err != nil {
		return classified(err, StageInitializing, ClassEntityNotFound)
	}

	s.emitStage(log, StageCreatingResource)
	if payload.DatabaseName != "" {
		if err := s.provisioner.CreateDatabase(ctx, project.ID, payload.DatabaseName); err != nil {
			return classified(err, StageCreatingResource, ClassDependencyCreationFailed)
		}
	}

	s.emitStage(log, StageRegisteringDependencies)
	for _, service := range payload.Services {
		if err := s.registrar.RegisterService(ctx, project.ID, service); err != nil {
			return classified(err, StageRegisteringDependencies, ClassDownstreamRegistrationFailed)
		}
	}

	s.emitStage(log, StageFinalizing)
	log.InfoContext(ctx, "provisioning completed",
		slog.String("project", project.Name),
		slog.Int("services", len(payload.Services)))

	return nil
}

func (s *Service) emitStage(log *slog.Logger, stage Stage) {
	log.Info("provisioning stage", slog.String("stage", string(stage)))
	observeStage(stage)
}
