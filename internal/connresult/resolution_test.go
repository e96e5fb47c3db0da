package connresult

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShot_RejectsSecondDispatch(t *testing.T) {
	res := NewOneShot(Intent{Action: ActionSignIn, Target: "https://example.com"})
	r := New(SignInRequired, res)
	host := &recordingHost{}

	require.NoError(t, r.StartResolution(context.Background(), host, 1))
	assert.True(t, res.Dispatched())

	err := r.StartResolution(context.Background(), host, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolutionConsumed)
	assert.True(t, IsDispatchError(err))
	assert.Equal(t, 1, host.count())
}

func TestOneShot_CancelAfterDispatch(t *testing.T) {
	res := NewOneShot(Intent{})
	require.NoError(t, res.Dispatch(context.Background(), &recordingHost{}, 1))

	assert.False(t, res.Cancel())
	assert.False(t, res.Cancel())
}

func TestOneShot_HostRefusalKeepsCapability(t *testing.T) {
	res := NewOneShot(Intent{Action: ActionEnable})
	refusing := &recordingHost{err: errors.New("window closed")}

	err := New(ServiceDisabled, res).StartResolution(context.Background(), refusing, 1)
	require.Error(t, err)
	assert.False(t, res.Dispatched())

	host := &recordingHost{}
	require.NoError(t, New(ServiceDisabled, res).StartResolution(context.Background(), host, 2))
	assert.Equal(t, 1, host.count())
}

func TestOneShot_ConcurrentDispatchLaunchesOnce(t *testing.T) {
	res := NewOneShot(Intent{Action: ActionResolve})
	r := New(ResolutionRequired, res)
	host := &recordingHost{}

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.StartResolution(context.Background(), host, i)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrResolutionConsumed)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, host.count())
}

func TestDispatchFunc(t *testing.T) {
	var gotID int
	res := DispatchFunc(func(ctx context.Context, host Host, requestID int) error {
		gotID = requestID
		return host.Launch(ctx, Intent{Action: "custom"}, requestID)
	})
	host := &recordingHost{}

	require.NoError(t, New(ResolutionRequired, res).StartResolution(context.Background(), host, 77))
	assert.Equal(t, 77, gotID)
	require.Len(t, host.launches, 1)
	assert.Equal(t, "custom", host.launches[0].intent.Action)
}

func TestDispatchError_Message(t *testing.T) {
	err := &DispatchError{Code: SignInRequired, RequestID: 3, Err: ErrResolutionExpired}
	assert.Equal(t, "failed to dispatch resolution for SIGN_IN_REQUIRED (request 3): resolution expired", err.Error())
	assert.ErrorIs(t, err, ErrResolutionExpired)
	assert.False(t, IsDispatchError(ErrResolutionExpired))
}
