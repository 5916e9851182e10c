// internal/game/round_test.go
package game

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu       sync.Mutex
	events   []GameEvent
	outcomes []Outcome
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = append(mb.events, ev)
}

func (mb *mockBroadcaster) onRoundEnd(out Outcome) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.outcomes = append(mb.outcomes, out)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = nil
}

func (mb *mockBroadcaster) count(t GameEventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (mb *mockBroadcaster) ofType(t GameEventType) []GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []GameEvent
	for _, ev := range mb.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.events)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func testRules(symbols ...string) Rules {
	r := DefaultRules()
	if len(symbols) > 0 {
		r.Symbols = symbols
	}
	return r
}

// setupTestEngine builds an engine on a fake clock with a deterministic shuffle.
func setupTestEngine(t *testing.T, rules Rules) (*Engine, *fakeClock, *mockBroadcaster) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := newFakeClock()
	mb := &mockBroadcaster{}
	e := NewEngine(rules)
	e.Clock = clock
	e.Logger = logger
	e.Rand = rand.New(rand.NewSource(7))
	e.BroadcastFn = mb.broadcastFn
	e.OnRoundEnd = mb.onRoundEnd
	return e, clock, mb
}

// startRound starts a round and clears the setup events.
func startRound(t *testing.T, e *Engine, mb *mockBroadcaster) RoundState {
	t.Helper()
	_, err := e.Start("tester")
	require.NoError(t, err)
	mb.clear()
	st, ok := e.Snapshot()
	require.True(t, ok)
	return st
}

// positionsBySymbol maps each symbol to its two positions on the board.
func positionsBySymbol(st RoundState) map[string][]int {
	out := make(map[string][]int)
	for _, c := range st.Deck {
		out[c.Symbol] = append(out[c.Symbol], c.Position)
	}
	return out
}

func TestDeckContainsEachSymbolTwice(t *testing.T) {
	all := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}
	for n := 1; n <= len(all); n++ {
		e, _, mb := setupTestEngine(t, testRules(all[:n]...))
		st := startRound(t, e, mb)

		require.Len(t, st.Deck, 2*n)
		counts := make(map[string]int)
		for i, c := range st.Deck {
			assert.Equal(t, i, c.Position)
			counts[c.Symbol]++
		}
		require.Len(t, counts, n)
		for sym, c := range counts {
			assert.Equal(t, 2, c, "symbol %s with N=%d", sym, n)
		}
	}
}

func TestShuffleIsUniform(t *testing.T) {
	symbols := []string{"A", "B", "C", "D"}
	r := rand.New(rand.NewSource(1))
	const trials = 8000

	// Frequency of each symbol at the first position, and of the first "A" landing
	// in the first half of the board. Both are 1/4 and 1 - C(4,2)/C(8,2) respectively.
	first := make(map[string]int)
	aFirstHalf := 0
	for i := 0; i < trials; i++ {
		deck := buildDeck(symbols, r)
		first[deck[0].Symbol]++
		for _, c := range deck {
			if c.Symbol == "A" {
				if c.Position < 4 {
					aFirstHalf++
				}
				break
			}
		}
	}

	expected := trials / len(symbols)
	for _, s := range symbols {
		assert.InDelta(t, expected, first[s], float64(expected)*0.1, "symbol %s at position 0", s)
	}
	wantFirstHalf := float64(trials) * (1 - 6.0/28.0)
	assert.InDelta(t, wantFirstHalf, float64(aFirstHalf), wantFirstHalf*0.05)
}

func TestStartEmitsBoardScoreAndTimer(t *testing.T) {
	e, _, mb := setupTestEngine(t, testRules("A", "B"))
	id, err := e.Start("ana")
	require.NoError(t, err)

	require.Equal(t, 3, mb.len())
	board := mb.ofType(EventBoardReady)
	require.Len(t, board, 1)
	require.NotNil(t, board[0].Board)
	assert.Equal(t, id, board[0].RoundID)
	assert.Equal(t, 4, board[0].Board.Size)
	assert.Equal(t, 2, board[0].Board.Pairs)
	for _, c := range board[0].Board.Cards {
		assert.Empty(t, c.Symbol, "board_ready must not leak symbols")
	}

	score := mb.ofType(EventScoreChanged)
	require.Len(t, score, 1)
	assert.Equal(t, 0, *score[0].Score)
	timer := mb.ofType(EventTimerChanged)
	require.Len(t, timer, 1)
	assert.Equal(t, 30, *timer[0].Remaining)
	assert.Equal(t, PhaseRunning, e.Phase())
}

func TestFlipOnFaceUpOrMatchedIsNoOp(t *testing.T) {
	e, clock, mb := setupTestEngine(t, testRules("A", "B", "C"))
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)

	require.True(t, e.Flip(pos["A"][0]))
	before := mb.len()
	assert.False(t, e.Flip(pos["A"][0]), "same position twice must be rejected")
	assert.Equal(t, before, mb.len(), "rejected flip must not emit")

	require.True(t, e.Flip(pos["A"][1]))
	clock.Advance(e.Rules.SettleDelay)

	before = mb.len()
	snap, _ := e.Snapshot()
	assert.False(t, e.Flip(pos["A"][0]))
	assert.False(t, e.Flip(pos["A"][1]))
	assert.False(t, e.Flip(-1))
	assert.False(t, e.Flip(len(st.Deck)))
	assert.Equal(t, before, mb.len())
	after, _ := e.Snapshot()
	assert.Equal(t, snap.States, after.States)
	assert.Equal(t, snap.Score, after.Score)
}

func TestThirdFlipRejectedUntilSettle(t *testing.T) {
	e, clock, mb := setupTestEngine(t, testRules("A", "B", "C"))
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)

	require.True(t, e.Flip(pos["A"][0]))
	require.True(t, e.Flip(pos["B"][0]))
	assert.False(t, e.Flip(pos["C"][0]), "third flip during settle must be rejected")

	clock.Advance(799 * time.Millisecond)
	assert.False(t, e.Flip(pos["C"][0]))
	assert.Equal(t, 0, mb.count(EventCardHidden))

	clock.Advance(time.Millisecond)
	assert.Equal(t, 2, mb.count(EventCardHidden))
	snap, _ := e.Snapshot()
	assert.Equal(t, FaceDown, snap.States[pos["A"][0]])
	assert.Equal(t, FaceDown, snap.States[pos["B"][0]])
	assert.Empty(t, snap.Revealed)

	assert.True(t, e.Flip(pos["C"][0]), "flips are accepted again after settle")
}

func TestMatchAddsRewardAndStaysMatched(t *testing.T) {
	e, clock, mb := setupTestEngine(t, testRules("A", "B"))
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)

	e.Flip(pos["A"][0])
	e.Flip(pos["A"][1])

	snap, _ := e.Snapshot()
	assert.Equal(t, 10, snap.Score)
	assert.Equal(t, 1, snap.MatchedPairs)
	assert.Equal(t, Matched, snap.States[pos["A"][0]])
	assert.Equal(t, Matched, snap.States[pos["A"][1]])
	assert.Equal(t, 2, mb.count(EventCardMatched))

	clock.Advance(e.Rules.SettleDelay)
	assert.Equal(t, 0, mb.count(EventCardHidden), "matched cards never flip back")

	// Later play must not disturb the matched pair.
	e.Flip(pos["B"][0])
	clock.Advance(10 * time.Second)
	snap, _ = e.Snapshot()
	assert.Equal(t, Matched, snap.States[pos["A"][0]])
	assert.Equal(t, Matched, snap.States[pos["A"][1]])
}

func TestMismatchPenaltyFloorsAtZero(t *testing.T) {
	rules := testRules("A", "B", "C")
	rules.MatchReward = 1
	e, clock, mb := setupTestEngine(t, rules)
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)

	// From zero the score stays at zero.
	e.Flip(pos["B"][0])
	e.Flip(pos["C"][0])
	snap, _ := e.Snapshot()
	assert.Equal(t, 0, snap.Score)
	clock.Advance(rules.SettleDelay)

	e.Flip(pos["A"][0])
	e.Flip(pos["A"][1])
	clock.Advance(rules.SettleDelay)
	snap, _ = e.Snapshot()
	require.Equal(t, 1, snap.Score)

	e.Flip(pos["B"][0])
	e.Flip(pos["C"][0])
	snap, _ = e.Snapshot()
	assert.Equal(t, 0, snap.Score, "1 - 2 is floored at 0")

	scores := mb.ofType(EventScoreChanged)
	require.NotEmpty(t, scores)
	for _, ev := range scores {
		assert.GreaterOrEqual(t, *ev.Score, 0)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	e, clock, mb := setupTestEngine(t, testRules("A", "B"))
	startRound(t, e, mb)

	assert.True(t, e.Terminate(true))
	assert.False(t, e.Terminate(false))
	assert.False(t, e.Terminate(true))
	e.Tick()
	clock.Advance(time.Minute)

	assert.Equal(t, 1, mb.count(EventRoundEnded))
	require.Len(t, mb.outcomes, 1)
	assert.True(t, mb.outcomes[0].Victory)
	assert.Equal(t, PhaseEnded, e.Phase())
	assert.Equal(t, 0, clock.pending(), "terminate cancels every timer")
}

func TestWinWithEightPairs(t *testing.T) {
	e, clock, mb := setupTestEngine(t, DefaultRules())
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)
	require.Len(t, pos, 8)

	for _, sym := range DefaultSymbols {
		require.True(t, e.Flip(pos[sym][0]))
		require.True(t, e.Flip(pos[sym][1]))
		clock.Advance(e.Rules.SettleDelay)
	}

	require.Len(t, mb.outcomes, 1)
	out := mb.outcomes[0]
	assert.True(t, out.Victory)
	assert.Equal(t, 8, out.MatchedPairs)
	assert.Equal(t, 80, out.Score)
	assert.Equal(t, 6, out.ElapsedSeconds, "8 settles of 800ms")
	assert.Equal(t, "tester", out.PlayerName)
	assert.Equal(t, 1, mb.count(EventRoundEnded))

	// Timeout after a win changes nothing.
	clock.Advance(time.Minute)
	assert.Len(t, mb.outcomes, 1)
	last, ok := e.LastOutcome()
	require.True(t, ok)
	assert.Equal(t, out, last)
}

func TestTimeoutAfterRoundDuration(t *testing.T) {
	e, clock, mb := setupTestEngine(t, DefaultRules())
	startRound(t, e, mb)

	for i := 1; i < 30; i++ {
		clock.Advance(time.Second)
		require.Equal(t, PhaseRunning, e.Phase(), "still running at %ds", i)
	}
	timers := mb.ofType(EventTimerChanged)
	require.Len(t, timers, 29)
	for i, ev := range timers {
		assert.Equal(t, 29-i, *ev.Remaining)
	}

	clock.Advance(time.Second)
	assert.Equal(t, PhaseEnded, e.Phase())
	require.Len(t, mb.outcomes, 1)
	assert.False(t, mb.outcomes[0].Victory)
	assert.Equal(t, 30, mb.outcomes[0].ElapsedSeconds)
	last := mb.ofType(EventTimerChanged)
	assert.Equal(t, 0, *last[len(last)-1].Remaining)

	clock.Advance(10 * time.Second)
	assert.Len(t, mb.outcomes, 1)
	assert.Equal(t, 1, mb.count(EventRoundEnded))
	assert.Len(t, mb.ofType(EventTimerChanged), 30)
	assert.False(t, e.Flip(0), "flips after the end are ignored")
}

func TestWinBeatsTimeoutInSameSettleWindow(t *testing.T) {
	rules := testRules("A")
	rules.RoundDuration = time.Second
	e, clock, mb := setupTestEngine(t, rules)
	startRound(t, e, mb)

	clock.Advance(500 * time.Millisecond)
	require.True(t, e.Flip(0))
	require.True(t, e.Flip(1))

	// The countdown reaches zero before the 800ms settle continuation runs.
	clock.Advance(time.Second)
	require.Len(t, mb.outcomes, 1)
	assert.True(t, mb.outcomes[0].Victory)
	assert.Equal(t, 1, mb.count(EventRoundEnded))
}

func TestExampleRoundWithFourSymbols(t *testing.T) {
	e, clock, mb := setupTestEngine(t, testRules("A", "B", "C", "D"))
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)

	e.Flip(pos["A"][0])
	e.Flip(pos["A"][1])
	snap, _ := e.Snapshot()
	assert.Equal(t, 10, snap.Score)
	assert.Equal(t, 1, snap.MatchedPairs)
	clock.Advance(800 * time.Millisecond)

	e.Flip(pos["B"][0])
	e.Flip(pos["C"][0])
	snap, _ = e.Snapshot()
	assert.Equal(t, 8, snap.Score)
	clock.Advance(800 * time.Millisecond)

	for _, sym := range []string{"B", "C", "D"} {
		e.Flip(pos[sym][0])
		e.Flip(pos[sym][1])
		clock.Advance(800 * time.Millisecond)
	}

	require.Len(t, mb.outcomes, 1)
	assert.True(t, mb.outcomes[0].Victory)
	assert.Equal(t, 38, mb.outcomes[0].Score)
	assert.Equal(t, 4, mb.outcomes[0].MatchedPairs)
	ended := mb.ofType(EventRoundEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "Congratulations! You won with 38 points in 4s!", ended[0].Payload["message"])
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	e, _, mb := setupTestEngine(t, testRules("A", "B"))
	first := startRound(t, e, mb)

	_, err := e.Start("other")
	assert.ErrorIs(t, err, ErrRoundRunning)
	snap, _ := e.Snapshot()
	assert.Equal(t, first.ID, snap.ID, "rejected start leaves the round alone")

	require.True(t, e.Terminate(false))
	id, err := e.Start("other")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, id)
}

func TestResetDropsStaleContinuations(t *testing.T) {
	e, clock, mb := setupTestEngine(t, testRules("A", "B", "C"))
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)

	e.Flip(pos["A"][0])
	e.Flip(pos["B"][0])
	e.Reset()
	assert.Equal(t, PhaseIdle, e.Phase())
	assert.Empty(t, mb.outcomes, "reset does not report an outcome")

	next := startRound(t, e, mb)
	npos := positionsBySymbol(next)
	require.True(t, e.Flip(npos["C"][0]))

	// The previous round's settle and countdown must not touch the new round.
	clock.Advance(800 * time.Millisecond)
	assert.Equal(t, 0, mb.count(EventCardHidden))
	snap, _ := e.Snapshot()
	assert.Equal(t, FaceUp, snap.States[npos["C"][0]])

	clock.Advance(200 * time.Millisecond)
	timers := mb.ofType(EventTimerChanged)
	require.Len(t, timers, 1, "exactly one countdown is running")
	assert.Equal(t, 29, *timers[0].Remaining)
}

func TestStartRejectsInvalidRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *Rules)
		want   error
	}{
		{"empty symbols", func(r *Rules) { r.Symbols = nil }, ErrEmptySymbolSet},
		{"blank symbol", func(r *Rules) { r.Symbols = []string{"A", " "} }, ErrBlankSymbol},
		{"duplicate symbol", func(r *Rules) { r.Symbols = []string{"A", "A"} }, ErrDuplicateSymbol},
		{"zero duration", func(r *Rules) { r.RoundDuration = 0 }, ErrInvalidDuration},
		{"negative duration", func(r *Rules) { r.RoundDuration = -time.Second }, ErrInvalidDuration},
		{"negative settle", func(r *Rules) { r.SettleDelay = -time.Millisecond }, ErrNegativeSettle},
		{"negative penalty", func(r *Rules) { r.MismatchPenalty = -2 }, ErrNegativeScoreDelta},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules := DefaultRules()
			tc.mutate(&rules)
			e, _, mb := setupTestEngine(t, rules)

			_, err := e.Start("tester")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Equal(t, PhaseIdle, e.Phase())
			assert.Zero(t, mb.len())
		})
	}
}

func TestObfuscatedStateHidesFaceDownSymbols(t *testing.T) {
	e, _, mb := setupTestEngine(t, testRules("A", "B"))
	st := startRound(t, e, mb)
	pos := positionsBySymbol(st)
	e.Flip(pos["B"][1])

	obf := e.GetObfuscatedRoundState()
	assert.Equal(t, st.ID, obf.RoundID)
	assert.Equal(t, "running", obf.Phase)
	assert.Equal(t, 30, obf.Remaining)
	require.Len(t, obf.Cards, 4)
	for _, c := range obf.Cards {
		if c.Position == pos["B"][1] {
			assert.Equal(t, "B", c.Symbol)
			assert.Equal(t, FaceUp, c.State)
		} else {
			assert.Empty(t, c.Symbol)
		}
	}

	ev := e.SyncEvent()
	assert.Equal(t, EventRoundSync, ev.Type)
	require.NotNil(t, ev.State)
	assert.JSONEq(t, `"face_up"`, string(mustJSON(t, ev.State.Cards[pos["B"][1]].State)))
}

func TestEngineLogsRoundLifecycle(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e, _, _ := setupTestEngine(t, testRules("A"))
	e.Logger = logger

	_, err := e.Start("ana")
	require.NoError(t, err)
	e.Terminate(false)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Round started", entries[0].Message)
	assert.Equal(t, "Round ended", entries[1].Message)
	assert.Equal(t, logrus.InfoLevel, entries[1].Level)
	assert.Equal(t, false, entries[1].Data["victory"])
}
