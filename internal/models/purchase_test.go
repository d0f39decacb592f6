package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeCreateAssignsID(t *testing.T) {
	purchase := &Purchase{}
	require.NoError(t, purchase.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, purchase.ID)
}

func TestBeforeCreateKeepsExistingID(t *testing.T) {
	id := uuid.New()
	purchase := &Purchase{ID: id}
	require.NoError(t, purchase.BeforeCreate(nil))
	assert.Equal(t, id, purchase.ID)
}

func TestIsPaid(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Purchase{Status: PaymentPending}).IsPaid())
	assert.True(t, (&Purchase{Status: PaymentPaid, PaidAt: &now}).IsPaid())
}
