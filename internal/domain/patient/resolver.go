package patient

import (
	"context"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/graphql"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
)

// Resolver exposes the patient operations on the GraphQL engine.
type Resolver struct {
	svc *Service
	log *logging.Logger
}

func NewResolver(svc *Service, log *logging.Logger) *Resolver {
	return &Resolver{svc: svc, log: log}
}

// Register wires the patient queries and mutations. The sensitive-data
// query is the only one gated behind authentication; the service itself
// never checks authorization.
func (r *Resolver) Register(e *graphql.Engine) {
	e.Query("patients", graphql.Operation{Resolve: r.patients})
	e.Query("patient", graphql.Operation{Resolve: r.patient})
	e.Query("patientWithSensitiveData", graphql.Operation{Resolve: r.patientWithSensitiveData, RequireAuth: true})

	e.Mutation("createPatient", graphql.Operation{Resolve: r.createPatient})
	e.Mutation("updatePatient", graphql.Operation{Resolve: r.updatePatient})
	e.Mutation("deletePatient", graphql.Operation{Resolve: r.deletePatient})
}

func (r *Resolver) patients(ctx context.Context, _ graphql.Args) (interface{}, error) {
	r.log.Info(ctx, "fetching all patients", map[string]interface{}{
		"operation": "patients.query",
	})
	list, err := r.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, p := range list {
		out = append(out, p.BasicMap())
	}
	r.log.Info(ctx, "fetched patients", map[string]interface{}{
		"operation": "patients.query",
		"count":     len(out),
	})
	return out, nil
}

// patient returns the basic projection, or null with a logged warning
// when the id is unknown.
func (r *Resolver) patient(ctx context.Context, args graphql.Args) (interface{}, error) {
	id, ok := args.Int("id")
	if !ok {
		return nil, apperror.Validation("id is required", nil)
	}

	p, err := r.svc.Get(ctx, uint(id))
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			r.log.Warn(ctx, "patient not found", map[string]interface{}{
				"operation": "patient.query",
				"patientId": id,
			})
			return nil, nil
		}
		return nil, err
	}
	return p.BasicMap(), nil
}

func (r *Resolver) patientWithSensitiveData(ctx context.Context, args graphql.Args) (interface{}, error) {
	id, ok := args.Int("id")
	if !ok {
		return nil, apperror.Validation("id is required", nil)
	}

	r.log.Info(ctx, "fetching patient with sensitive data", map[string]interface{}{
		"operation": "patientWithSensitiveData.query",
		"patientId": id,
	})
	p, err := r.svc.Get(ctx, uint(id))
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			r.log.Warn(ctx, "patient not found for sensitive data access", map[string]interface{}{
				"operation": "patientWithSensitiveData.query",
				"patientId": id,
			})
			return nil, nil
		}
		return nil, err
	}
	return p.SensitiveMap(), nil
}

func (r *Resolver) createPatient(ctx context.Context, args graphql.Args) (interface{}, error) {
	raw, ok := args.Object("createPatientInput")
	if !ok {
		return nil, apperror.Validation("createPatientInput is required", nil)
	}
	in, err := DecodeCreateInput(raw)
	if err != nil {
		return nil, err
	}

	r.log.Info(ctx, "creating patient", map[string]interface{}{
		"operation": "createPatient.mutation",
	})
	p, err := r.svc.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "created patient", map[string]interface{}{
		"operation": "createPatient.mutation",
		"patientId": int(p.ID),
	})
	return p.BasicMap(), nil
}

func (r *Resolver) updatePatient(ctx context.Context, args graphql.Args) (interface{}, error) {
	id, ok := args.Int("id")
	if !ok {
		return nil, apperror.Validation("id is required", nil)
	}
	raw, ok := args.Object("updatePatientInput")
	if !ok {
		return nil, apperror.Validation("updatePatientInput is required", nil)
	}
	in, err := DecodeUpdateInput(raw)
	if err != nil {
		return nil, err
	}

	p, err := r.svc.Update(ctx, uint(id), in)
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			r.log.Warn(ctx, "patient not found for update", map[string]interface{}{
				"operation": "updatePatient.mutation",
				"patientId": id,
			})
			return nil, nil
		}
		return nil, err
	}
	r.log.Info(ctx, "updated patient", map[string]interface{}{
		"operation": "updatePatient.mutation",
		"patientId": id,
	})
	return p.BasicMap(), nil
}

// deletePatient returns true on success and false when the id is
// unknown, matching the API contract rather than surfacing not-found.
func (r *Resolver) deletePatient(ctx context.Context, args graphql.Args) (interface{}, error) {
	id, ok := args.Int("id")
	if !ok {
		return nil, apperror.Validation("id is required", nil)
	}

	if _, err := r.svc.Delete(ctx, uint(id)); err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			r.log.Warn(ctx, "patient not found for delete", map[string]interface{}{
				"operation": "deletePatient.mutation",
				"patientId": id,
			})
			return false, nil
		}
		return nil, err
	}
	r.log.Info(ctx, "deleted patient", map[string]interface{}{
		"operation": "deletePatient.mutation",
		"patientId": id,
	})
	return true, nil
}
