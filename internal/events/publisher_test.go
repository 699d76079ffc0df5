package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failing struct{}

func (failing) Publish(string, any) error { return errors.New("broker down") }
func (failing) Close()                    {}

func TestEmit_UsesActivePublisher(t *testing.T) {
	rec := &Recorder{}
	prev := Use(rec)
	t.Cleanup(func() { Use(prev) })

	Emit(SubjectLeadCreated, map[string]any{"id": 1})
	Emit(SubjectLeadCreated, map[string]any{"id": 2})
	Emit(SubjectPaymentCompleted, nil)

	assert.Equal(t, 2, rec.Count(SubjectLeadCreated))
	assert.Equal(t, 1, rec.Count(SubjectPaymentCompleted))
}

func TestEmit_SwallowsErrors(t *testing.T) {
	prev := Use(failing{})
	t.Cleanup(func() { Use(prev) })

	assert.NotPanics(t, func() { Emit(SubjectAnalyticsEvent, "x") })
}

func TestInit_EmptyURLDisables(t *testing.T) {
	assert.NoError(t, Init(""))
}
