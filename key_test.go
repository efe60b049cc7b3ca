package selkie

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyInterestRoundTrip(t *testing.T) {
	owner := &fakeOwner{}
	k := newKey(3, owner)

	ops, err := k.InterestOps()
	assert.NoError(t, err)
	assert.Equal(t, Interest(0), ops)

	assert.NoError(t, k.SetInterestOps(ReadInterest))
	ops, err = k.InterestOps()
	assert.NoError(t, err)
	assert.Equal(t, ReadInterest, ops)
	assert.Equal(t, ReadInterest, owner.lastApplied())

	assert.NoError(t, k.SetInterestOps(ReadInterest|WriteInterest))
	ops, _ = k.InterestOps()
	assert.Equal(t, ReadInterest|WriteInterest, ops)
}

func TestKeyCancelled(t *testing.T) {
	owner := &fakeOwner{}
	k := newKey(3, owner)
	assert.True(t, k.IsValid())

	k.cancel()
	assert.False(t, k.IsValid())

	_, err := k.InterestOps()
	assert.ErrorIs(t, err, ErrKeyCancelled)
	assert.ErrorIs(t, k.SetInterestOps(ReadInterest), ErrKeyCancelled)
	assert.Zero(t, owner.applyCount())
}

func TestKeyApplyFailureLeavesMaskUntouched(t *testing.T) {
	owner := &fakeOwner{err: errors.New("boom")}
	k := newKey(3, owner)

	assert.Error(t, k.SetInterestOps(ReadInterest))
	ops, err := k.InterestOps()
	assert.NoError(t, err)
	assert.Equal(t, Interest(0), ops, "failed apply must not update the mirror")
}

func TestKeyReadyOps(t *testing.T) {
	k := newKey(3, &fakeOwner{})
	assert.Equal(t, Interest(0), k.ReadyOps())
	k.setReadyOps(ReadInterest | WriteInterest)
	assert.Equal(t, ReadInterest|WriteInterest, k.ReadyOps())
}
