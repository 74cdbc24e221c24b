// Package account exposes the demo authentication operations: token
// issuance plus a handful of guarded queries that exercise the guard
// and role checks.
package account

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/patientdesk/patientdesk/internal/platform/auth"
	"github.com/patientdesk/patientdesk/internal/platform/graphql"
)

type Resolver struct {
	tokens *auth.TokenService
}

func NewResolver(tokens *auth.TokenService) *Resolver {
	return &Resolver{tokens: tokens}
}

func (r *Resolver) Register(e *graphql.Engine) {
	e.Query("getDemoToken", graphql.Operation{Resolve: r.getDemoToken})
	e.Query("publicQuery", graphql.Operation{Resolve: r.publicQuery})
	e.Query("protectedQuery", graphql.Operation{Resolve: r.protectedQuery, RequireAuth: true})
	e.Query("getCurrentUser", graphql.Operation{Resolve: r.getCurrentUser, RequireAuth: true})
	e.Query("userRoles", graphql.Operation{Resolve: r.userRoles, RequireAuth: true})
	e.Query("adminOnlyQuery", graphql.Operation{Resolve: r.adminOnlyQuery, RequireAuth: true, Roles: []string{"admin"}})

	e.Mutation("generateCustomToken", graphql.Operation{Resolve: r.generateCustomToken})
	e.Mutation("updateProfile", graphql.Operation{Resolve: r.updateProfile, RequireAuth: true})
}

func (r *Resolver) getDemoToken(_ context.Context, _ graphql.Args) (interface{}, error) {
	return r.tokens.GenerateDemoToken()
}

func (r *Resolver) publicQuery(_ context.Context, _ graphql.Args) (interface{}, error) {
	return "This is a public query accessible to everyone!", nil
}

func (r *Resolver) protectedQuery(ctx context.Context, _ graphql.Args) (interface{}, error) {
	id := auth.IdentityFromContext(ctx)
	return fmt.Sprintf("Hello %s! This is a protected query. Your email is %s.", id.Name, id.Email), nil
}

func (r *Resolver) getCurrentUser(ctx context.Context, _ graphql.Args) (interface{}, error) {
	id := auth.IdentityFromContext(ctx)
	b, err := json.MarshalIndent(map[string]interface{}{
		"id":    id.Subject,
		"email": id.Email,
		"name":  id.Name,
		"roles": id.Roles,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Resolver) userRoles(ctx context.Context, _ graphql.Args) (interface{}, error) {
	return auth.IdentityFromContext(ctx).Roles, nil
}

func (r *Resolver) adminOnlyQuery(ctx context.Context, _ graphql.Args) (interface{}, error) {
	id := auth.IdentityFromContext(ctx)
	return fmt.Sprintf("Welcome admin %s! You have admin access.", id.Name), nil
}

func (r *Resolver) generateCustomToken(_ context.Context, args graphql.Args) (interface{}, error) {
	email, _ := args.String("email")
	name, _ := args.String("name")
	roles, _ := args.StringList("roles")
	return r.tokens.GenerateCustomToken(email, name, roles)
}

func (r *Resolver) updateProfile(ctx context.Context, args graphql.Args) (interface{}, error) {
	name, _ := args.String("name")
	id := auth.IdentityFromContext(ctx)
	return fmt.Sprintf("Profile updated! Hello %s, your previous name was %s. User ID: %s", name, id.Name, id.Subject), nil
}
