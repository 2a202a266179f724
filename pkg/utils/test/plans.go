package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/planservice"
)

// PlanReader is an in-memory stand-in for the plan service's read path.
type PlanReader struct {
	mu    sync.Mutex
	plans map[string]*planservice.Versioned
}

func NewPlanReader() *PlanReader {
	return &PlanReader{plans: make(map[string]*planservice.Versioned)}
}

// Put stores p and returns it with its canonical document and fingerprint.
func (r *PlanReader) Put(p *plan.Plan) *planservice.Versioned {
	canonical, err := plan.Encode(p)
	if err != nil {
		panic(err)
	}
	v := &planservice.Versioned{
		Plan:        p,
		Document:    canonical,
		Fingerprint: fingerprint.Of(canonical),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ObjectID] = v
	return v
}

func (r *PlanReader) Get(_ context.Context, id string) (*planservice.Versioned, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.plans[id]
	if !ok {
		return nil, &planservice.NotFoundError{ID: id}
	}
	return v, nil
}
