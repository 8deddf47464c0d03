package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func TestNewStudent(t *testing.T) {
	u, err := NewStudent("NST-1234", "  Asha ", "hash", Profile{Board: "CBSE", ClassLevel: 10}, 2)
	require.NoError(t, err)

	assert.Equal(t, "Asha", u.Name)
	assert.Equal(t, RoleStudent, u.Role)
	assert.Equal(t, 2, u.Credits)
	assert.False(t, u.IsAdmin())

	_, err = NewStudent("bad", "x", "h", Profile{}, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestRequesterSnapshot(t *testing.T) {
	admin := NewAdmin("hash")
	r := admin.Requester()

	assert.True(t, r.IsAdmin)
	assert.Equal(t, shared.AdminUserID, r.UserID)
}

func TestProfileSelector(t *testing.T) {
	assert.Equal(t,
		curriculum.Selector{Board: "cbse", ClassLevel: 11, Stream: "science"},
		Profile{Board: "CBSE", ClassLevel: 11, Stream: "Science"}.Selector())

	// Stream ignored below class 11.
	assert.Equal(t,
		curriculum.Selector{Board: "bseb", ClassLevel: 9},
		Profile{Board: "BSEB", ClassLevel: 9, Stream: "arts"}.Selector())

	assert.Equal(t, curriculum.Selector{}, Profile{}.Selector())
}
