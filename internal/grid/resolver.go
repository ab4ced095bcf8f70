// ABOUTME: Resolves a grid name to an access-checked descriptor.
// ABOUTME: Access is evaluated after the source loads and before any data leaves.

package grid

import (
	"context"
	"errors"
	"fmt"
	"log"

	apperrors "github.com/2389/tabulator/internal/errors"
)

// Messages shown to callers.
const (
	MsgNoName   = "No grid name given"
	MsgNoAccess = "NO ACCESS"
)

// Resolver looks up grid sources and checks access.
type Resolver struct {
	finder Finder
}

// NewResolver creates a resolver over f. A nil f uses the global registry.
func NewResolver(f Finder) *Resolver {
	if f == nil {
		f = Registered
	}
	return &Resolver{finder: f}
}

// Resolve loads the grid named req.Name with req.LoadRows set to loadRows,
// checks its access predicate, and stamps its name.
func (r *Resolver) Resolve(ctx context.Context, req *Request, loadRows bool) (*Descriptor, error) {
	if req.Name == "" {
		return nil, apperrors.NotFound(MsgNoName)
	}

	src, ok := r.finder.Find(req.Name)
	if !ok {
		return nil, apperrors.NotFound("Grid %s not found", req.Name)
	}

	req.LoadRows = loadRows

	d, err := src.Load(ctx, req)
	if err != nil {
		var typed *apperrors.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, apperrors.InvalidGrid("%s: %v", src.Location(), err)
	}
	if d == nil {
		return nil, apperrors.InvalidGrid("%s must return a Grid object!", src.Location())
	}

	d.Name = req.Name

	if err := checkAccess(ctx, d.Access, req, MsgNoAccess); err != nil {
		return nil, err
	}
	return d, nil
}

// CheckAction runs an action's own access predicate.
func CheckAction(ctx context.Context, a *Action, req *Request, deniedMsg string) error {
	return checkAccess(ctx, a.Access, req, deniedMsg)
}

// checkAccess evaluates fn, denying on nil, false, error or panic. Errors and
// panics replace the default message so predicates can explain a rejection.
func checkAccess(ctx context.Context, fn AccessFunc, req *Request, deniedMsg string) (err error) {
	if fn == nil {
		return apperrors.AccessDenied(deniedMsg)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("grid %s: access predicate panicked: %v", req.Name, p)
			err = apperrors.AccessDenied(fmt.Sprint(p))
		}
	}()

	ok, aerr := fn(ctx, req)
	if aerr != nil {
		return apperrors.AccessDenied(aerr.Error())
	}
	if !ok {
		return apperrors.AccessDenied(deniedMsg)
	}
	return nil
}
