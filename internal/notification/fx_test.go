package notification

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/lms/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestRunDispatcherStopsWorkersWithApp(t *testing.T) {
	provider := &recordingProvider{}
	d := newDispatcher(provider, config.DefaultEnrollmentSettings(), Config{Workers: 3})

	app := fxtest.New(t, fx.Supply(d), fx.Invoke(runDispatcher))
	app.RequireStart()

	d.Notify(context.Background(), Notice{StudentID: 1, CourseID: 7, CourseTitle: "Go Basics"})
	require.Eventually(t, func() bool { return len(provider.messages()) == 1 }, time.Second, 10*time.Millisecond)

	app.RequireStop()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers still running after stop")
	}

	d.Notify(context.Background(), Notice{StudentID: 1, CourseID: 8, CourseTitle: "Go Advanced"})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, provider.messages(), 1)
}
