package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/corerr"
)

func TestRegisterEntityRejectsOutOfBoundsIDWithEntityIDLengthReason(t *testing.T) {
	tr := New()
	did := tr.CreateDevice("lamp", "")

	_, err := tr.RegisterEntity(did, "")
	require.Error(t, err)
	var e *corerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, corerr.CodeQueryValidation, e.Code)
	assert.Equal(t, corerr.ReasonEntityIDLength, e.Reason)

	_, err = tr.RegisterEntity(did, strings.Repeat("x", MaxEntityIDBytes+1))
	require.Error(t, err)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, corerr.ReasonEntityIDLength, e.Reason)
}

func TestSetComponentOnAbsentTypeReturnsNotFound(t *testing.T) {
	tr := New()
	did := tr.CreateDevice("lamp", "")
	eidx, err := tr.RegisterEntity(did, "main")
	require.NoError(t, err)

	err = tr.SetComponent(did, eidx, component.Switch(true))
	require.Error(t, err)
	var e *corerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, corerr.CodeNotFound, e.Code)
}
