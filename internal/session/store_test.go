package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewStore(WithClock(clock.Now)), clock
}

func TestCreateSession_GeneratesMeetingID(t *testing.T) {
	store, clock := newTestStore()

	sess := store.CreateSession("")

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "session-1740823200000", sess.MeetingID)
	assert.Equal(t, clock.Now(), sess.StartedAt)
	assert.Nil(t, sess.EndedAt)

	got, ok := store.GetSession(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)
	assert.Empty(t, got.Requirements)
	assert.Empty(t, got.Transcripts)
	assert.Empty(t, got.Artifacts)
}

func TestCreateSession_UniqueIDs(t *testing.T) {
	store, _ := newTestStore()
	seen := map[string]bool{}
	for range 100 {
		sess := store.CreateSession("meet-abc")
		assert.False(t, seen[sess.ID])
		seen[sess.ID] = true
	}
	assert.Equal(t, 100, store.Len())
}

func TestEndSession_SetOnce(t *testing.T) {
	store, clock := newTestStore()
	sess := store.CreateSession("m")

	clock.Advance(time.Minute)
	store.EndSession(sess.ID)
	first, _ := store.GetSession(sess.ID)
	require.NotNil(t, first.EndedAt)

	clock.Advance(time.Minute)
	store.EndSession(sess.ID)
	second, _ := store.GetSession(sess.ID)
	assert.Equal(t, *first.EndedAt, *second.EndedAt)
	assert.False(t, second.EndedAt.Before(second.StartedAt))

	store.EndSession("missing")
}

func TestAddRequirement(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")

	req, err := store.AddRequirement(sess.ID, RequirementDraft{
		ComponentType: ComponentForm,
		Description:   "signup form",
		Priority:      PriorityHigh,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "", req.Context)
	assert.Equal(t, PriorityHigh, req.Priority)
	assert.Equal(t, ComponentForm, req.ComponentType)
}

func TestAddRequirement_NormalizesDraft(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")

	req, err := store.AddRequirement(sess.ID, RequirementDraft{ComponentType: "Carousel", Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, ComponentOther, req.ComponentType)
	assert.Equal(t, PriorityMedium, req.Priority)
}

func TestAddRequirement_UnknownSession(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.AddRequirement("nope", RequirementDraft{ComponentType: ComponentButton})
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestUpdateRequirementStatus_Lenient(t *testing.T) {
	store, _ := newTestStore()
	assert.NotPanics(t, func() {
		store.UpdateRequirementStatus("nope", "nope", StatusGenerating)
	})

	sess := store.CreateSession("")
	assert.NotPanics(t, func() {
		store.UpdateRequirementStatus(sess.ID, "nope", StatusGenerating)
	})
}

func TestUpdateRequirementStatus_Monotonic(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")
	req, _ := store.AddRequirement(sess.ID, RequirementDraft{ComponentType: ComponentCard})

	store.UpdateRequirementStatus(sess.ID, req.ID, StatusCompleted)
	assert.Equal(t, StatusPending, store.GetRequirements(sess.ID)[0].Status, "completion requires an artifact")

	store.UpdateRequirementStatus(sess.ID, req.ID, StatusGenerating)
	assert.Equal(t, StatusGenerating, store.GetRequirements(sess.ID)[0].Status)

	store.UpdateRequirementStatus(sess.ID, req.ID, StatusPending)
	assert.Equal(t, StatusGenerating, store.GetRequirements(sess.ID)[0].Status, "no backward transition")
	assert.Empty(t, store.GetPendingRequirements(sess.ID))
}

func TestAddTranscript_InterimReplacedInPlace(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")

	first, err := store.AddTranscript(sess.ID, "Hel", false, "")
	require.NoError(t, err)
	second, err := store.AddTranscript(sess.ID, "Hello", false, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	final, err := store.AddTranscript(sess.ID, "Hello there", true, "assistant")
	require.NoError(t, err)
	assert.Equal(t, first.ID, final.ID)
	assert.True(t, final.IsFinal)

	next, err := store.AddTranscript(sess.ID, "Next", false, "")
	require.NoError(t, err)
	assert.NotEqual(t, final.ID, next.ID)

	got, _ := store.GetSession(sess.ID)
	require.Len(t, got.Transcripts, 2)
	assert.Equal(t, "Hello there", got.Transcripts[0].Text)
	assert.True(t, got.Transcripts[0].IsFinal)
	assert.Equal(t, "assistant", got.Transcripts[0].Speaker)
	assert.Equal(t, "Next", got.Transcripts[1].Text)
}

func TestAddTranscript_AlternatingNeverTwoInterims(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")

	pattern := []bool{false, false, true, true, false, true, false, false, false, true, false}
	for i, final := range pattern {
		_, err := store.AddTranscript(sess.ID, string(rune('a'+i)), final, "")
		require.NoError(t, err)
	}

	got, _ := store.GetSession(sess.ID)
	for i, msg := range got.Transcripts {
		if i < len(got.Transcripts)-1 {
			assert.True(t, msg.IsFinal, "only the tail may be interim (index %d)", i)
		}
	}
	// finals recorded before the last interim keep their text
	assert.Equal(t, "c", got.Transcripts[0].Text)
	assert.Equal(t, "d", got.Transcripts[1].Text)
	assert.Equal(t, "k", got.Transcripts[len(got.Transcripts)-1].Text)
}

func TestAddTranscript_UnknownSession(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.AddTranscript("nope", "x", true, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAddArtifact_CompletesReferencedOnly(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")
	a, _ := store.AddRequirement(sess.ID, RequirementDraft{ComponentType: ComponentButton})
	b, _ := store.AddRequirement(sess.ID, RequirementDraft{ComponentType: ComponentTable})
	c, _ := store.AddRequirement(sess.ID, RequirementDraft{ComponentType: ComponentChart})
	store.UpdateRequirementStatus(sess.ID, b.ID, StatusGenerating)
	store.UpdateRequirementStatus(sess.ID, c.ID, StatusGenerating)

	art, err := store.AddArtifact(sess.ID, "export default 1", FrameworkReact, []string{a.ID, b.ID, "ghost"})
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, b.ID}, art.RequirementIDs)
	assert.True(t, art.IsComplete)

	status := map[string]Status{}
	for _, r := range store.GetRequirements(sess.ID) {
		status[r.ID] = r.Status
	}
	assert.Equal(t, StatusCompleted, status[a.ID])
	assert.Equal(t, StatusCompleted, status[b.ID])
	assert.Equal(t, StatusGenerating, status[c.ID])

	got, _ := store.GetSession(sess.ID)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "export default 1", got.Artifacts[0].Code)
}

func TestAddArtifactWithID_KeepsIDAndDedupes(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")
	a, _ := store.AddRequirement(sess.ID, RequirementDraft{ComponentType: ComponentForm})

	art, err := store.AddArtifactWithID(sess.ID, "art-7", "x", FrameworkReact, []string{a.ID, a.ID, "ghost", a.ID})
	require.NoError(t, err)
	assert.Equal(t, "art-7", art.ID)
	assert.Equal(t, []string{a.ID}, art.RequirementIDs)

	got, _ := store.GetSession(sess.ID)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "art-7", got.Artifacts[0].ID)

	fresh, err := store.AddArtifactWithID(sess.ID, "", "y", FrameworkReact, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.ID)
}

func TestAddArtifact_UnknownSession(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.AddArtifact("nope", "", FrameworkHTML, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSession_ReturnsSnapshot(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")
	_, _ = store.AddRequirement(sess.ID, RequirementDraft{ComponentType: ComponentModal})

	snap, _ := store.GetSession(sess.ID)
	snap.Requirements[0].Status = StatusCompleted

	assert.Equal(t, StatusPending, store.GetRequirements(sess.ID)[0].Status)
}

func TestReadsOnAbsentSessionAreEmpty(t *testing.T) {
	store, _ := newTestStore()
	assert.Empty(t, store.GetRequirements("nope"))
	assert.Empty(t, store.GetPendingRequirements("nope"))
	_, ok := store.GetSession("nope")
	assert.False(t, ok)
}

func TestDeleteSession(t *testing.T) {
	store, _ := newTestStore()
	sess := store.CreateSession("")
	store.DeleteSession(sess.ID)
	_, ok := store.GetSession(sess.ID)
	assert.False(t, ok)
	store.DeleteSession(sess.ID)
}

func TestEvictIdle(t *testing.T) {
	store, clock := newTestStore()
	ended := store.CreateSession("ended")
	live := store.CreateSession("live")
	store.EndSession(ended.ID)

	clock.Advance(10 * time.Minute)
	assert.Empty(t, store.EvictIdle(clock.Now(), 15*time.Minute))

	clock.Advance(10 * time.Minute)
	evicted := store.EvictIdle(clock.Now(), 15*time.Minute)
	assert.Equal(t, []string{ended.ID}, evicted)

	_, ok := store.GetSession(live.ID)
	assert.True(t, ok)
}

func TestConcurrentSessionsDoNotInterfere(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = store.CreateSession("").ID
	}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := range 50 {
				_, _ = store.AddTranscript(id, "t", j%3 == 0, "")
				_, _ = store.AddRequirement(id, RequirementDraft{ComponentType: ComponentList})
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Len(t, store.GetRequirements(id), 50)
	}
}
