// internal/models/purchase_test.go
package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPurchaseRequiresContent(t *testing.T) {
	blankContent := "  "
	content := "KEY-1"
	url := "https://example.com/file.zip"

	assert.ErrorIs(t, (&Purchase{}).BeforeCreate(nil), ErrEmptyPurchase)
	assert.ErrorIs(t, (&Purchase{DeliveredContent: &blankContent}).BeforeCreate(nil), ErrEmptyPurchase)

	withContent := &Purchase{DeliveredContent: &content}
	assert.NoError(t, withContent.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, withContent.ID)

	assert.NoError(t, (&Purchase{DownloadURL: &url}).BeforeCreate(nil))
}

func TestJSONBScan(t *testing.T) {
	var fromBytes JSONB
	assert.NoError(t, fromBytes.Scan([]byte(`{"fulfilled":2}`)))
	assert.EqualValues(t, 2, fromBytes["fulfilled"])

	var fromString JSONB
	assert.NoError(t, fromString.Scan(`{"items":[]}`))
	assert.Contains(t, fromString, "items")

	var fromNil JSONB
	assert.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	assert.Error(t, fromNil.Scan(42))
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusPaid.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())
}
