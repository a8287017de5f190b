package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Appended()
	m.Appended()
	m.MarkedRead(3)
	m.MarkedRead(0)
	m.Push("newMessage", ResultDelivered)
	m.Push("newMessage", ResultOffline)
	m.Push("newMessage", ResultOffline)
	m.SetOnline(4)
	m.ObserveStore("append", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesAppended))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pushes.WithLabelValues("newMessage", ResultOffline)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.OnlineConns))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Appended()
	m.MarkedRead(1)
	m.Push("newMessage", ResultError)
	m.SetOnline(1)
	m.ObserveStore("append", time.Now())
	require.NotNil(t, m.Middleware())
}

func TestRegistryCollectsAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Appended()
	m.Push("messagesRead", ResultDelivered)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dmsync_messages_appended_total"])
	assert.True(t, names["dmsync_pushes_total"])
}
