package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanerRunsInReverseOrder(t *testing.T) {
	c := NewCleaner()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		c.Add(CallableFunc(func(context.Context) error {
			order = append(order, i)
			if i == 2 {
				return errors.New("boom")
			}
			return nil
		}))
	}
	loggerClosed := false
	c.Init(CallableFunc(func(context.Context) error {
		loggerClosed = true
		return nil
	}))

	c.Clean()
	c.Clean()

	<-c.Done()
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.True(t, loggerClosed)

	c.Add(CallableFunc(func(context.Context) error {
		t.Fatal("added after cleanup")
		return nil
	}))
}
