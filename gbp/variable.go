package gbp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/linalg"
)

// Variable owns a prior, a current belief, and the incoming messages it has
// received from its neighbouring factors, keyed by factor id.
//
// Message slots are created lazily and are zero-initialised (η=0, Λ=0):
// since information-form addition treats zero as the identity, a missing
// slot and a freshly-created one are indistinguishable, so UpdateBelief
// needs no special case for "no message received yet".
type Variable struct {
	id     int
	dofs   int
	prior  *gaussian.Gaussian
	belief *gaussian.Gaussian

	mu       sync.Mutex // guards messages; written concurrently by factors under Parallelism > 1
	messages map[int]*gaussian.Gaussian
}

// NewVariable constructs a Variable with the given prior; its belief
// starts out equal to the prior.
func NewVariable(id, dofs int, prior *gaussian.Gaussian) (*Variable, error) {
	if prior.Dim() != dofs {
		return nil, fmt.Errorf("NewVariable(%d): prior dim %d != dofs %d: %w", id, prior.Dim(), dofs, ErrDimensionMismatch)
	}

	return &Variable{
		id:       id,
		dofs:     dofs,
		prior:    prior,
		belief:   prior.Clone(),
		messages: make(map[int]*gaussian.Gaussian),
	}, nil
}

// ID returns the variable's dense arena index.
func (v *Variable) ID() int { return v.id }

// Dofs returns the variable's dimensionality.
func (v *Variable) Dofs() int { return v.dofs }

// Prior returns the variable's prior Gaussian.
func (v *Variable) Prior() *gaussian.Gaussian { return v.prior }

// Belief returns the variable's current belief Gaussian.
func (v *Variable) Belief() *gaussian.Gaussian { return v.belief }

// ReceiveMessageFrom stores the message a factor has sent to this variable,
// overwriting any previous message from the same factor id. Safe for
// concurrent use by distinct factors within one phase.
func (v *Variable) ReceiveMessageFrom(factorID int, msg *gaussian.Gaussian) error {
	if msg.Dim() != v.dofs {
		return fmt.Errorf("ReceiveMessageFrom(%d): message dim %d != dofs %d: %w", factorID, msg.Dim(), v.dofs, ErrDimensionMismatch)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages[factorID] = msg

	return nil
}

// UpdateBelief sets belief = prior ⊕ ⨁ incoming messages (a sum in
// information form). Idempotent: calling it twice with no intervening
// messages leaves the belief unchanged. Messages are accumulated in factor
// id order so that floating-point roundoff is reproducible run to run,
// which the solver's deterministic energy-trace contract depends on.
func (v *Variable) UpdateBelief() error {
	v.mu.Lock()
	msgs := v.sortedMessagesLocked()
	v.mu.Unlock()

	belief := v.prior.Clone()
	for _, m := range msgs {
		if err := belief.AddAssign(m); err != nil {
			return fmt.Errorf("UpdateBelief(%d): %w", v.id, err)
		}
	}
	v.belief = belief

	return nil
}

// sortedMessagesLocked returns the incoming messages ordered by factor id.
// Callers must hold v.mu.
func (v *Variable) sortedMessagesLocked() []*gaussian.Gaussian {
	ids := make([]int, 0, len(v.messages))
	for id := range v.messages {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	msgs := make([]*gaussian.Gaussian, len(ids))
	for i, id := range ids {
		msgs[i] = v.messages[id]
	}

	return msgs
}

// PriorEnergy returns the squared Mahalanobis distance between the current
// belief mean and the prior mean, under the prior's own precision:
// rᵀ Λ_prior r where r = belief.Mean() - prior.Mean().
func (v *Variable) PriorEnergy() (float64, error) {
	beliefMean, err := v.belief.Mean()
	if err != nil {
		return 0, fmt.Errorf("PriorEnergy(%d): %w", v.id, err)
	}
	priorMean, err := v.prior.Mean()
	if err != nil {
		return 0, fmt.Errorf("PriorEnergy(%d): %w", v.id, err)
	}
	r := make([]float64, v.dofs)
	for i := range r {
		r[i] = beliefMean[i] - priorMean[i]
	}
	lr, err := linalg.MulVec(v.prior.Lambda, r)
	if err != nil {
		return 0, fmt.Errorf("PriorEnergy(%d): %w", v.id, err)
	}
	var energy float64
	for i, ri := range r {
		energy += ri * lr[i]
	}

	return energy, nil
}

// SendMessageTo produces the product of the prior and every incoming
// message except the one received from excludeFactorID — the classic
// loopy-BP "leave-one-out" step. The result has dimension v.dofs.
// Accumulation order is by factor id, for the same reproducibility reason
// as UpdateBelief.
func (v *Variable) SendMessageTo(excludeFactorID int) (*gaussian.Gaussian, error) {
	out := v.prior.Clone()

	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]int, 0, len(v.messages))
	for factorID := range v.messages {
		if factorID == excludeFactorID {
			continue
		}
		ids = append(ids, factorID)
	}
	sort.Ints(ids)
	for _, factorID := range ids {
		if err := out.AddAssign(v.messages[factorID]); err != nil {
			return nil, fmt.Errorf("SendMessageTo(%d, exclude=%d): %w", v.id, excludeFactorID, err)
		}
	}

	return out, nil
}

// RemoveConnectionTo drops the message slot for factorID. Returns
// ErrNoSuchConnection if no such slot exists.
func (v *Variable) RemoveConnectionTo(factorID int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.messages[factorID]; !ok {
		return fmt.Errorf("RemoveConnectionTo(%d, %d): %w", v.id, factorID, ErrNoSuchConnection)
	}
	delete(v.messages, factorID)

	return nil
}
