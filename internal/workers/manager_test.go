package workers

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

type stubWorker struct {
	name     string
	startErr error
	rec      *recorder
}

func (w *stubWorker) Start() error {
	if w.startErr != nil {
		return w.startErr
	}
	w.rec.events = append(w.rec.events, "start "+w.name)
	return nil
}

func (w *stubWorker) Stop() { w.rec.events = append(w.rec.events, "stop "+w.name) }

func (w *stubWorker) Name() string { return w.name }

func TestManager(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("stops in reverse order", func(t *testing.T) {
		rec := &recorder{}
		m := NewManager(logger, &stubWorker{name: "a", rec: rec}, &stubWorker{name: "b", rec: rec})

		require.NoError(t, m.Start())
		m.Stop()

		assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.events)
	})

	t.Run("rolls back on start failure", func(t *testing.T) {
		rec := &recorder{}
		boom := errors.New("bad schedule")
		m := NewManager(logger,
			&stubWorker{name: "a", rec: rec},
			&stubWorker{name: "b", rec: rec, startErr: boom},
			&stubWorker{name: "c", rec: rec},
		)

		err := m.Start()
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"start a", "stop a"}, rec.events)

		m.Stop()
		assert.Equal(t, []string{"start a", "stop a"}, rec.events)
	})
}

func TestNewCronRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCron(logger)

	_, err := c.AddFunc("@every 1h", func() { panic("boom") })
	require.NoError(t, err)

	require.NotPanics(t, func() { c.Entries()[0].WrappedJob.Run() })
}
