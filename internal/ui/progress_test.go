package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/mcauth/internal/login"
)

var _ login.Progress = (*ProgressTracker)(nil)

func TestProgressTracker_DeliversInOrder(t *testing.T) {
	p := NewProgressTracker()
	p.SetTotal(7)
	p.SetCount(1)
	p.SetVisitURL("sign in", "https://login.example")
	p.ClearVisitURL()
	p.Finish(LoginFinished{Err: errors.New("boom")})

	next := p.Next()
	assert.Equal(t, LoginProgressMsg{Total: 7}, next())
	assert.Equal(t, LoginProgressMsg{Count: 1}, next())
	assert.Equal(t, VisitURLMsg{Message: "sign in", URL: "https://login.example"}, next())
	assert.Equal(t, VisitURLClearedMsg{}, next())

	finished, ok := next().(LoginFinished)
	require.True(t, ok)
	assert.EqualError(t, finished.Err, "boom")

	assert.Nil(t, next(), "closed tracker yields nothing")
}

func TestProgressTracker_NeverBlocks(t *testing.T) {
	p := NewProgressTracker()
	for i := 0; i < 100; i++ {
		p.SetCount(i)
	}
	assert.Equal(t, LoginProgressMsg{Count: 0}, p.Next()())
}
