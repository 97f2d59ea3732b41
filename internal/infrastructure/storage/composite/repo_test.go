package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"mt5rtd/internal/domain"
	"mt5rtd/internal/testutils"
)

func TestCompositePublishReachesAll(t *testing.T) {
	a := testutils.NewRecordingPublisher()
	b := testutils.NewRecordingPublisher()
	b.Err = errors.New("b down")
	c := testutils.NewRecordingPublisher()

	p := New(a, nil, b, c)
	assert.Equal(t, 3, p.Len())

	err := p.Publish(context.Background(), "room1", domain.Quote{Symbol: "AAA3", Price: 1})
	assert.EqualError(t, err, "b down")
	assert.Len(t, a.ForRoom("room1"), 1)
	assert.Len(t, c.ForRoom("room1"), 1, "a failing publisher does not block the rest")
}
