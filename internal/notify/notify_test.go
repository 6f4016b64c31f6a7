package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	require := require.New(t)

	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventLiquidation, " "}, quietLogger())

	require.NoError(n.Notify(context.Background(), EventZombie, "ignored", ""))
	require.NoError(n.Notify(context.Background(), EventLiquidation, "sent", ""))
	require.Equal([]string{"sent"}, s.titles)
	require.False(n.Enabled(EventZombie))
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", ""))
	require.Len(t, s.titles, 1)
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	require := require.New(t)

	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), EventZombie, "t", "m")
	require.ErrorContains(err, "bad: down")
	require.Len(good.titles, 1)
}

func TestNotifierWithoutSendersIsDisabled(t *testing.T) {
	n := NewNotifier(nil, nil, quietLogger())
	require.False(t, n.Enabled(EventZombie))
	require.NoError(t, n.Notify(context.Background(), EventZombie, "t", "m"))
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	require := require.New(t)

	var got map[string][]discordEmbed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(NewDiscordSender(srv.URL).Send(context.Background(), "Title", "Body"))
	require.Equal("Title", got["embeds"][0].Title)
	require.Equal("Body", got["embeds"][0].Description)
}

func TestTelegramSenderReportsStatus(t *testing.T) {
	require := require.New(t)

	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "chat not found")
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.ErrorContains(err, "telegram: unexpected status 400: chat not found")
	require.Equal("/bottok/sendMessage", path)
}

func TestLiquidationAlert(t *testing.T) {
	require := require.New(t)

	ev := domain.EnrichedEvent{
		Transition: domain.TransitionFullyLiquidated,
		Attribution: &domain.LiquidationAttribution{
			DebtCleared:    decimal.RequireFromString("11386.5"),
			CollLiquidated: decimal.NewFromInt(5),
			Method:         domain.ResolutionMixed,
			CollSurplus:    decimal.RequireFromString("0.25"),
		},
	}
	title, msg := LiquidationAlert("trove-9", ev)
	require.Equal("Trove liquidated", title)
	require.Contains(msg, "Trove trove-9: Liquidation")
	require.Contains(msg, "Debt cleared: 11,386.50")
	require.Contains(msg, "Claimable surplus: 0.25")
}

func TestZombieAlert(t *testing.T) {
	_, msg := ZombieAlert("trove-3", decimal.NewFromInt(1500), domain.ZombieClassification{Zombie: true, Reason: domain.ZombieBelowMinimum})
	require.Contains(t, msg, "1,500.00")
}

func TestNotifierCooldownSuppressesRepeats(t *testing.T) {
	require := require.New(t)

	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger()).WithCooldown(time.Hour)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n.repeats.now = func() time.Time { return clock }

	ctx := context.Background()
	require.NoError(n.Notify(ctx, EventIntegrityError, "Trove 1", ""))
	require.NoError(n.Notify(ctx, EventIntegrityError, "Trove 1", ""))
	require.NoError(n.Notify(ctx, EventIntegrityError, "Trove 2", ""))
	require.Equal([]string{"Trove 1", "Trove 2"}, s.titles)

	clock = clock.Add(time.Hour)
	require.NoError(n.Notify(ctx, EventIntegrityError, "Trove 1", ""))
	require.Len(s.titles, 3)
}
