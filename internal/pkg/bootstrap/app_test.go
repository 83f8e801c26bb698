package bootstrap

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name    string
	failErr error
	events  *[]string
}

func (r *fakeRunner) Start(context.Context) error {
	if r.failErr != nil {
		*r.events = append(*r.events, "fail:"+r.name)
		return r.failErr
	}
	*r.events = append(*r.events, "start:"+r.name)
	return nil
}

func (r *fakeRunner) Stop(context.Context) {
	*r.events = append(*r.events, "stop:"+r.name)
}

func TestStartRunners_StopsStartedOnFailure(t *testing.T) {
	var events []string
	boom := errors.New("broker unreachable")
	runners := []Runner{
		&fakeRunner{name: "consumer", events: &events},
		&fakeRunner{name: "sweep", events: &events},
		&fakeRunner{name: "router", failErr: boom, events: &events},
		&fakeRunner{name: "never", events: &events},
	}

	err := startRunners(context.Background(), runners)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{
		"start:consumer", "start:sweep", "fail:router",
		"stop:sweep", "stop:consumer",
	}, events)
}

func TestStartRunners_AllStarted(t *testing.T) {
	var events []string
	runners := []Runner{
		&fakeRunner{name: "consumer", events: &events},
		&fakeRunner{name: "sweep", events: &events},
	}

	require.NoError(t, startRunners(context.Background(), runners))
	assert.Equal(t, []string{"start:consumer", "start:sweep"}, events)
}
