package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Chat/internal/domain"
)

func TestEphemeral_Expires_Once(t *testing.T) {
	req := require.New(t)
	fired := make(chan string, 4)
	m := NewEphemeralManager(time.Minute, func(id string) { fired <- id })

	evt, err := m.Publish("s1", "alice", "data:image/png;base64,AA", 20*time.Millisecond)
	req.NoError(err)
	req.NotEmpty(evt.ID)
	req.Equal("alice", evt.Owner)
	req.Equal(1, evt.TTLSeconds)
	req.Equal(1, m.Pending())

	var id string
	select {
	case id = <-fired:
	case <-time.After(2 * time.Second):
		req.Fail("timer did not fire")
	}
	req.Equal(evt.ID, id)

	marker, ok := m.Expire(id)
	req.True(ok)
	req.Equal(id, marker.ID)
	req.Equal(0, m.Pending())

	_, ok = m.Expire(id)
	req.False(ok)
}

func TestEphemeral_Validation_And_Cap(t *testing.T) {
	req := require.New(t)
	m := NewEphemeralManager(5*time.Second, nil)

	_, err := m.Publish("s1", "a", "", time.Second)
	req.ErrorIs(err, domain.ErrValidation)
	_, err = m.Publish("s1", "a", "ref", 0)
	req.ErrorIs(err, domain.ErrValidation)

	evt, err := m.Publish("s1", "a", "ref", time.Hour)
	req.NoError(err)
	req.Equal(5, evt.TTLSeconds)
	m.StopAll()
}

func TestEphemeral_ReleaseOwner(t *testing.T) {
	req := require.New(t)
	m := NewEphemeralManager(0, func(string) {})
	a1, _ := m.Publish("a", "a", "r1", time.Hour)
	a2, _ := m.Publish("a", "a", "r2", time.Hour)
	_, _ = m.Publish("b", "b", "r3", time.Hour)

	markers := m.ReleaseOwner("a")
	req.Len(markers, 2)
	ids := []string{markers[0].ID, markers[1].ID}
	req.ElementsMatch([]string{a1.ID, a2.ID}, ids)
	req.Equal(1, m.Pending())
	m.StopAll()
}

func TestEphemeral_StopAll_Silences_Timers(t *testing.T) {
	req := require.New(t)
	fired := make(chan string, 1)
	m := NewEphemeralManager(0, func(id string) { fired <- id })
	_, err := m.Publish("s1", "a", "ref", 10*time.Millisecond)
	req.NoError(err)

	m.StopAll()
	req.Equal(0, m.Pending())

	select {
	case <-fired:
		req.Fail("expiry fired after StopAll")
	case <-time.After(100 * time.Millisecond):
	}
	_, err = m.Publish("s1", "a", "ref", time.Second)
	req.Error(err)
}
