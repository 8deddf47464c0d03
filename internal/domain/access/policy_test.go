package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func flatCosts(n int) CostTable {
	return CostFunc(func(curriculum.ContentType) int { return n })
}

func TestEvaluateRules(t *testing.T) {
	e := NewEvaluator(CostFunc(func(ct curriculum.ContentType) int {
		if ct == curriculum.ContentNotesPremium {
			return 3
		}
		return 1
	}))

	tests := []struct {
		name string
		req  Requester
		ct   curriculum.ContentType
		want AccessGrant
	}{
		{
			name: "admin is free",
			req:  Requester{IsAdmin: true},
			ct:   curriculum.ContentNotesPremium,
			want: AccessGrant{Allowed: true, CreditDelta: 0, Reason: ReasonPrivileged, Cost: 3},
		},
		{
			name: "premium is free",
			req:  Requester{IsPremium: true, Credits: 0},
			ct:   curriculum.ContentMCQ,
			want: AccessGrant{Allowed: true, CreditDelta: 0, Reason: ReasonPrivileged, Cost: 1},
		},
		{
			name: "exact balance is charged",
			req:  Requester{Credits: 3},
			ct:   curriculum.ContentNotesPremium,
			want: AccessGrant{Allowed: true, CreditDelta: -3, Reason: ReasonCharged, Cost: 3},
		},
		{
			name: "zero credits denied",
			req:  Requester{Credits: 0},
			ct:   curriculum.ContentNotesSimple,
			want: AccessGrant{Allowed: false, Reason: ReasonInsufficientCredits, Cost: 1},
		},
		{
			name: "locked admin denied",
			req:  Requester{IsAdmin: true, IsLocked: true},
			ct:   curriculum.ContentNotesSimple,
			want: AccessGrant{Allowed: false, Reason: ReasonAccountLocked, Cost: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(tt.req, tt.ct))
		})
	}
}

func TestGrantErr(t *testing.T) {
	e := NewEvaluator(flatCosts(1))

	assert.NoError(t, e.Evaluate(Requester{Credits: 1}, curriculum.ContentMCQ).Err())

	err := e.Evaluate(Requester{}, curriculum.ContentMCQ).Err()
	assert.True(t, shared.IsAccessDenied(err))
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)

	err = e.Evaluate(Requester{IsLocked: true}, curriculum.ContentMCQ).Err()
	assert.ErrorIs(t, err, shared.ErrAccountLocked)
}

func TestEvaluateDoesNotMutateRequester(t *testing.T) {
	req := Requester{Credits: 5}
	NewEvaluator(flatCosts(1)).Evaluate(req, curriculum.ContentMCQ)
	assert.Equal(t, 5, req.Credits)
}
