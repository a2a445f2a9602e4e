package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every store implementation that can run in this environment.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			t.Logf("Postgres not available: %v", err)
			return out
		}
		for _, table := range []string{"escalations", "conversation_history", "system_settings", "conversation_states", "inbound_dedup"} {
			_, err := pg.db.Exec("DELETE FROM " + table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestDetectDSNType(t *testing.T) {
	assert.Equal(t, "postgres", DetectDSNType("postgres://u:p@localhost/db"))
	assert.Equal(t, "postgres", DetectDSNType("postgresql://localhost/db"))
	assert.Equal(t, "postgres", DetectDSNType("host=localhost dbname=msia"))
	assert.Equal(t, "sqlite3", DetectDSNType("/var/lib/msia/state.db"))
	assert.Equal(t, "sqlite3", DetectDSNType("file:state.db"))
}

func TestWithSQLiteParams(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000&_journal_mode=WAL", withSQLiteParams("a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL", withSQLiteParams("file:a.db?cache=shared"))
}

func TestNewSQLiteStore_RequiresDSN(t *testing.T) {
	_, err := NewSQLiteStore()
	assert.Error(t, err)
}

func TestEscalation_CreateIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, created, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{
				ConversationID: "101", UserID: "u-1", Reason: "Agente desactivado", Source: models.SourceAgentDisabled,
				Metadata: map[string]any{"message_preview": "hola"},
			})
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEmpty(t, first.ID)
			assert.Equal(t, models.EscalationStatusPending, first.Status)

			second, created, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{
				ConversationID: "101", Reason: "otra vez", Source: models.SourceAgentDisabled,
			})
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "hola", second.Metadata["message_preview"])

			// A different source is an independent escalation.
			other, created, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{
				ConversationID: "101", Reason: "tool", Source: models.SourceToolCall,
			})
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEqual(t, first.ID, other.ID)

			list, err := s.ListEscalations(ctx, EscalationFilter{ConversationID: "101", Source: models.SourceAgentDisabled})
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestEscalation_ConcurrentCreateYieldsOneRow(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 8
			var wg sync.WaitGroup
			ids := make([]string, workers)
			errs := make([]error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					e, _, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{
						ConversationID: "202", Reason: "burst", Source: models.SourceAgentDisabled,
					})
					errs[i] = err
					if e != nil {
						ids[i] = e.ID
					}
				}(i)
			}
			wg.Wait()

			for i := 0; i < workers; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, ids[0], ids[i])
			}
			list, err := s.ListEscalations(ctx, EscalationFilter{ConversationID: "202"})
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestEscalation_ResolveThenRecreate(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e, _, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{ConversationID: "303", Reason: "r", Source: models.SourceAgentDisabled})
			require.NoError(t, err)

			require.NoError(t, s.UpdateEscalationStatus(ctx, e.ID, models.EscalationStatusInProgress))
			require.NoError(t, s.UpdateEscalationStatus(ctx, e.ID, models.EscalationStatusResolved))

			resolved, err := s.GetEscalation(ctx, e.ID)
			require.NoError(t, err)
			require.NotNil(t, resolved)
			assert.Equal(t, models.EscalationStatusResolved, resolved.Status)
			assert.NotNil(t, resolved.ResolvedAt)

			open, err := s.GetOpenEscalation(ctx, "303", models.SourceAgentDisabled)
			require.NoError(t, err)
			assert.Nil(t, open)

			again, created, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{ConversationID: "303", Reason: "r2", Source: models.SourceAgentDisabled})
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEqual(t, e.ID, again.ID)

			pending, err := s.ListEscalations(ctx, EscalationFilter{Status: models.EscalationStatusPending})
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, again.ID, pending[0].ID)
		})
	}
}

func TestListEscalations_OldestFirstPaging(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			before := time.Now().Add(-time.Second)
			var ids []string
			for _, conv := range []string{"501", "502", "503"} {
				e, _, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{ConversationID: conv, Reason: "r", Source: models.SourceToolCall})
				require.NoError(t, err)
				ids = append(ids, e.ID)
				time.Sleep(5 * time.Millisecond)
			}
			filter := EscalationFilter{
				Status:        models.EscalationStatusPending,
				CreatedBefore: time.Now().Add(time.Minute),
				OldestFirst:   true,
				Limit:         2,
			}

			page, err := s.ListEscalations(ctx, filter)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, ids[0], page[0].ID)
			assert.Equal(t, ids[1], page[1].ID)

			filter.Offset = 2
			page, err = s.ListEscalations(ctx, filter)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, ids[2], page[0].ID)

			filter.Offset = 0
			filter.CreatedBefore = before
			page, err = s.ListEscalations(ctx, filter)
			require.NoError(t, err)
			assert.Empty(t, page)
		})
	}
}

func TestEscalation_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e, _, err := s.CreateEscalationIfAbsent(ctx, models.Escalation{ConversationID: "404", Reason: "r", Source: models.SourceToolCall})
			require.NoError(t, err)
			require.NoError(t, s.UpdateEscalationStatus(ctx, e.ID, models.EscalationStatusResolved))

			err = s.UpdateEscalationStatus(ctx, e.ID, models.EscalationStatusPending)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)

			err = s.UpdateEscalationStatus(ctx, e.ID, "closed")
			assert.ErrorIs(t, err, models.ErrInvalidStatus)

			err = s.UpdateEscalationStatus(ctx, "missing", models.EscalationStatusResolved)
			assert.ErrorIs(t, err, models.ErrEscalationNotFound)

			missing, err := s.GetEscalation(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestEscalation_RequiresConversationID(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.CreateEscalationIfAbsent(context.Background(), models.Escalation{Source: models.SourceToolCall})
			assert.ErrorIs(t, err, models.ErrEmptyConversationID)
		})
	}
}

func TestCounter_InsertOrIncrement(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			n, err := s.IncrementCounter(ctx, "505")
			require.NoError(t, err)
			assert.Zero(t, n, "no row yet")

			count, err := s.InsertOrIncrementCounter(ctx, "505", "u-5")
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			count, err = s.InsertOrIncrementCounter(ctx, "505", "")
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			n, err = s.IncrementCounter(ctx, "505")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			h, err := s.GetConversationHistory(ctx, "505")
			require.NoError(t, err)
			require.NotNil(t, h)
			assert.Equal(t, 3, h.MessageCount)
			assert.Equal(t, "u-5", h.UserID)

			missing, err := s.GetConversationHistory(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestCounter_ConcurrentFirstMessages(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 10
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.InsertOrIncrementCounter(ctx, "606", "u-6")
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			h, err := s.GetConversationHistory(ctx, "606")
			require.NoError(t, err)
			require.NotNil(t, h)
			assert.Equal(t, workers, h.MessageCount)
		})
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.GetSetting(ctx, "agent_enabled")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetSetting(ctx, "agent_enabled", "false"))
			require.NoError(t, s.SetSetting(ctx, "agent_enabled", "true"))

			v, ok, err := s.GetSetting(ctx, "agent_enabled")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "true", v)
		})
	}
}

func TestConversationState_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetConversationState(ctx, "707")
			require.NoError(t, err)
			assert.Nil(t, got)

			state := models.NewConversationState("707", "+34600000000")
			state.StartCollection("ENGANCHE")
			state.Collected["marca"] = "Seat"
			state.AppendMessage(models.HistoryMessage{Role: models.RoleUser, Content: "hola"})
			require.NoError(t, s.SaveConversationState(ctx, state))

			state.TotalMessageCount = 2
			require.NoError(t, s.SaveConversationState(ctx, state))

			got, err = s.GetConversationState(ctx, "707")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "+34600000000", got.UserPhone)
			assert.Equal(t, models.PhaseCollecting, got.CurrentPhase)
			assert.Equal(t, "ENGANCHE", got.ElementCode)
			assert.Equal(t, "Seat", got.Collected["marca"])
			assert.Equal(t, 2, got.TotalMessageCount)
			require.Len(t, got.Messages, 1)

			assert.ErrorIs(t, s.SaveConversationState(ctx, &models.ConversationState{}), models.ErrEmptyConversationID)
		})
	}
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dup, err := s.IsDuplicate(ctx, "msg-1")
			require.NoError(t, err)
			assert.False(t, dup)

			fresh, err := s.RecordInbound(ctx, "msg-1", "808")
			require.NoError(t, err)
			assert.True(t, fresh)

			fresh, err = s.RecordInbound(ctx, "msg-1", "808")
			require.NoError(t, err)
			assert.False(t, fresh)

			dup, err = s.IsDuplicate(ctx, "msg-1")
			require.NoError(t, err)
			assert.True(t, dup)

			assert.NoError(t, s.MarkProcessed(ctx, "msg-1"))
		})
	}
}

func TestPurgeDedup(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fresh, err := s.RecordInbound(ctx, "purge-1", "808")
			require.NoError(t, err)
			require.True(t, fresh)

			n, err := s.PurgeDedup(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Zero(t, n, "recent records are kept")

			n, err = s.PurgeDedup(ctx, time.Now().Add(time.Second))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, int64(1))

			dup, err := s.IsDuplicate(ctx, "purge-1")
			require.NoError(t, err)
			assert.False(t, dup)
		})
	}
}
