package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/coralstor/coral/pkg/daemon"
	"github.com/coralstor/coral/pkg/daemon/daemondefs"
	"github.com/coralstor/coral/pkg/testutil"
)

func setup(t *testing.T, h daemon.NotifyHandlers) (*daemon.Fixture, *daemon.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fx := daemon.NewFixture()
	client := daemon.DialFixture(ctx, fx, h)
	t.Cleanup(func() { client.Close() })
	return fx, client
}

func TestQuery(t *testing.T) {
	fx, client := setup(t, daemon.NotifyHandlers{})
	fx.SetCollection("disk", []map[string]any{
		{"name": "da0", "size": 100, "pool": "tank"},
		{"name": "da1", "size": 300, "pool": "tank"},
		{"name": "da2", "size": 200, "pool": ""},
	})

	rows, err := client.Query(context.Background(), "disk",
		[][3]any{{"pool", "==", "tank"}},
		daemondefs.QueryOptions{OrderBy: []string{"-size"}, Select: []string{"name"}})
	if err != nil {
		t.Fatalf("Query -> %v", err)
	}
	want := []map[string]any{{"name": "da1"}, {"name": "da0"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Query (-want +got):\n%s", diff)
	}
}

func TestQuery_OffsetLimit(t *testing.T) {
	fx, client := setup(t, daemon.NotifyHandlers{})
	fx.SetCollection("disk", []map[string]any{
		{"name": "da0"}, {"name": "da1"}, {"name": "da2"}, {"name": "da3"},
	})

	rows, err := client.Query(context.Background(), "disk", nil,
		daemondefs.QueryOptions{OrderBy: []string{"name"}, Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Query -> %v", err)
	}
	want := []map[string]any{{"name": "da1"}, {"name": "da2"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Query (-want +got):\n%s", diff)
	}
}

func TestQuery_UnknownCollection(t *testing.T) {
	_, client := setup(t, daemon.NotifyHandlers{})
	if _, err := client.Query(context.Background(), "nonesuch", nil, daemondefs.QueryOptions{}); err == nil {
		t.Errorf("Query of unknown collection -> nil error")
	}
}

func TestTask(t *testing.T) {
	progressCh := make(chan daemondefs.TaskProgress, 16)
	doneCh := make(chan daemondefs.TaskStatus, 1)
	fx, client := setup(t, daemon.NotifyHandlers{
		TaskProgress: func(p daemondefs.TaskProgress) { progressCh <- p },
		TaskDone:     func(s daemondefs.TaskStatus) { doneCh <- s },
	})
	fx.RegisterTask("echo", func(_ *daemon.Fixture, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	id, err := client.SubmitTask(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("SubmitTask -> %v", err)
	}

	status, err := client.WaitTask(context.Background(), id)
	if err != nil {
		t.Fatalf("WaitTask -> %v", err)
	}
	if status.State != daemondefs.TaskDone || status.Result != "hi" || status.Progress != 100 {
		t.Errorf("WaitTask -> %+v", status)
	}

	var progresses []int
	timeout := time.After(testutil.Scaled(time.Second))
	for len(progresses) < 3 {
		select {
		case p := <-progressCh:
			progresses = append(progresses, p.Progress)
		case <-timeout:
			t.Fatalf("got progress notifications %v, want 3", progresses)
		}
	}
	if diff := cmp.Diff([]int{25, 50, 75}, progresses); diff != "" {
		t.Errorf("progress (-want +got):\n%s", diff)
	}

	select {
	case s := <-doneCh:
		if s.ID != id || s.State != daemondefs.TaskDone {
			t.Errorf("done notification -> %+v", s)
		}
	case <-time.After(testutil.Scaled(time.Second)):
		t.Fatalf("no done notification")
	}
}

func TestTask_Failed(t *testing.T) {
	fx, client := setup(t, daemon.NotifyHandlers{})
	fx.RegisterTask("boom", func(_ *daemon.Fixture, _ map[string]any) (any, error) {
		return nil, errors.New("exploded")
	})

	id, err := client.SubmitTask(context.Background(), "boom", nil)
	if err != nil {
		t.Fatalf("SubmitTask -> %v", err)
	}
	status, err := client.WaitTask(context.Background(), id)
	if err != nil {
		t.Fatalf("WaitTask -> %v", err)
	}
	if status.State != daemondefs.TaskFailed || status.Error != "exploded" {
		t.Errorf("WaitTask -> %+v", status)
	}
}

func TestTask_Abort(t *testing.T) {
	fx, client := setup(t, daemon.NotifyHandlers{})
	fx.StepDelay = testutil.Scaled(time.Hour)

	id, err := client.SubmitTask(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("SubmitTask -> %v", err)
	}
	if err := client.AbortTask(context.Background(), id); err != nil {
		t.Fatalf("AbortTask -> %v", err)
	}
	status, err := client.WaitTask(context.Background(), id)
	if err != nil {
		t.Fatalf("WaitTask -> %v", err)
	}
	if status.State != daemondefs.TaskAborted {
		t.Errorf("WaitTask after abort -> %+v", status)
	}
}

func TestWaitTask_Canceled(t *testing.T) {
	fx, client := setup(t, daemon.NotifyHandlers{})
	fx.StepDelay = testutil.Scaled(time.Hour)

	id, err := client.SubmitTask(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("SubmitTask -> %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(testutil.Scaled(10 * time.Millisecond))
		cancel()
	}()
	if _, err := client.WaitTask(ctx, id); err == nil {
		t.Errorf("WaitTask with canceled context -> nil error")
	}
}

func TestEntityChanged(t *testing.T) {
	changeCh := make(chan daemondefs.EntityChange, 4)
	fx, client := setup(t, daemon.NotifyHandlers{
		EntityChanged: func(c daemondefs.EntityChange) { changeCh <- c },
	})
	daemon.SeedDemo(fx)

	id, err := client.SubmitTask(context.Background(), "volume.create",
		map[string]any{"name": "backup"})
	if err != nil {
		t.Fatalf("SubmitTask -> %v", err)
	}
	if status, err := client.WaitTask(context.Background(), id); err != nil || status.State != daemondefs.TaskDone {
		t.Fatalf("WaitTask -> (%+v, %v)", status, err)
	}

	select {
	case c := <-changeCh:
		want := daemondefs.EntityChange{
			Collection: "volume", Op: daemondefs.ChangeCreate, ID: "backup"}
		if diff := cmp.Diff(want, c); diff != "" {
			t.Errorf("change (-want +got):\n%s", diff)
		}
	case <-time.After(testutil.Scaled(time.Second)):
		t.Fatalf("no entity.changed notification")
	}

	rows, err := client.Query(context.Background(), "volume",
		[][3]any{{"name", "==", "backup"}}, daemondefs.QueryOptions{})
	if err != nil || len(rows) != 1 {
		t.Errorf("Query after create -> (%v, %v), want 1 row", rows, err)
	}
}
