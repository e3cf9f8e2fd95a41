package policy

import "context"

// Engine is the policy decision point's evaluation core (C5). Add/Remove/
// Update/List manage the in-memory active set; Evaluate/Simulate run a
// request against it.
type Engine interface {
	Add(p Policy)
	Remove(id string)
	Update(p Policy)
	List() []Policy
	Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResult, error)
	Simulate(ctx context.Context, req EvaluationRequest) (EvaluationResult, error)
}

// Update is a partial policy update (spec 4.6): the metadata subtree is
// merged field-by-field, while Rules/Status, when provided, replace the
// stored value outright.
type Update struct {
	Metadata      MetadataPatch
	Rules         []Rule
	RulesProvided bool
	Status        Status
	StatusProvided bool
}

// MetadataPatch carries only the metadata fields present in the request;
// zero-value fields are left untouched by Store.Update's merge.
type MetadataPatch struct {
	Name        *string
	Description *string
	Tags        []string
	Priority    *int
}

// ListFilter narrows FindByNamespace-style listing.
type ListFilter struct {
	Namespace string
	Status    Status
	Limit     int
	Offset    int
}

// Store is the durable policy repository (C7). A missing id surfaces as a
// NotFoundError, a namespace/name/version clash on Create as a
// ConflictError, and other failures as a StoreError.
type Store interface {
	Create(ctx context.Context, p Policy, actor string) (Policy, error)
	FindByID(ctx context.Context, id string) (Policy, error)
	FindActive(ctx context.Context) ([]Policy, error)
	FindByNamespace(ctx context.Context, namespace string, filter ListFilter) ([]Policy, error)
	Update(ctx context.Context, id string, patch Update) (Policy, error)
	Delete(ctx context.Context, id string) error
}
