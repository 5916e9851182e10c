// internal/game/round.go
package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/cache"
	"github.com/sirupsen/logrus"
)

// ErrRoundRunning is returned by Start while a round is still in progress.
var ErrRoundRunning = errors.New("a round is already running; reset or terminate it first")

// tickInterval is the countdown granularity.
const tickInterval = time.Second

// Phase is the engine's position in the Idle -> Running -> Ended state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// RoundState holds everything about the current round. It is owned by one Engine
// and replaced wholesale on every Start.
type RoundState struct {
	ID           uuid.UUID
	PlayerName   string
	Deck         []Card
	States       []CardState
	Revealed     []int // positions face up and not yet resolved, at most two
	MatchedPairs int
	Score        int
	StartTime    time.Time
	Ended        bool
}

// Engine runs single-player memory rounds. Every exported method takes the engine
// lock, and so do the countdown and settle callbacks, so operations never interleave.
type Engine struct {
	Rules  Rules
	Clock  Clock
	Logger logrus.FieldLogger

	// Rand is used for shuffling. If nil, a time-seeded source is created per round.
	Rand *rand.Rand

	// BroadcastFn receives every round event. It is called with the engine lock held
	// and must not call back into the engine. If nil, events are dropped.
	BroadcastFn func(ev GameEvent)

	// OnRoundEnd is invoked exactly once per round with the final outcome.
	// Same locking contract as BroadcastFn.
	OnRoundEnd OnRoundEndFunc

	mu          sync.Mutex
	phase       Phase
	state       *RoundState
	outcome     *Outcome
	generation  int // bumped on every Start/Reset; stale callbacks compare against it
	countdown   Timer
	settle      Timer
	actionIndex int
}

// NewEngine builds an idle engine with the given rules and the real clock.
func NewEngine(rules Rules) *Engine {
	return &Engine{
		Rules:  rules,
		Clock:  RealClock(),
		Logger: logrus.StandardLogger(),
	}
}

// Start deals a new board for playerName and starts the countdown.
// It fails on invalid rules and while another round is running.
func (e *Engine) Start(playerName string) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseRunning {
		return uuid.Nil, ErrRoundRunning
	}
	if err := e.Rules.Validate(); err != nil {
		return uuid.Nil, err
	}
	e.stopTimers()

	r := e.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, err
	}
	deck := buildDeck(e.Rules.Symbols, r)
	e.generation++
	e.state = &RoundState{
		ID:         id,
		PlayerName: playerName,
		Deck:       deck,
		States:     make([]CardState, len(deck)),
		Revealed:   make([]int, 0, 2),
		StartTime:  e.clock().Now(),
	}
	e.outcome = nil
	e.actionIndex = 0
	e.phase = PhaseRunning

	e.logger().WithFields(logrus.Fields{
		"round":  id,
		"player": playerName,
		"cards":  len(deck),
	}).Info("Round started")
	e.logAction("round_start", map[string]interface{}{
		"pairs":    e.Rules.Pairs(),
		"duration": e.Rules.RoundSeconds(),
	})

	layout := &BoardLayout{Size: len(deck), Pairs: e.Rules.Pairs(), Cards: make([]EventCard, len(deck))}
	for i := range deck {
		layout.Cards[i] = EventCard{Position: i}
	}
	e.fireEvent(GameEvent{Type: EventBoardReady, Board: layout})
	e.fireEvent(GameEvent{Type: EventScoreChanged, Score: intPtr(0)})
	e.fireEvent(GameEvent{Type: EventTimerChanged, Remaining: intPtr(e.Rules.RoundSeconds())})

	e.scheduleTick(e.generation)
	return id, nil
}

// Flip turns the card at position face up. Rejected flips are silent no-ops and
// report false: round not running, two cards awaiting settle, position out of range,
// or card not face down.
func (e *Engine) Flip(position int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return false
	}
	st := e.state
	if len(st.Revealed) >= 2 {
		return false
	}
	if position < 0 || position >= len(st.Deck) {
		return false
	}
	if st.States[position] != FaceDown {
		return false
	}

	card := st.Deck[position]
	st.States[position] = FaceUp
	st.Revealed = append(st.Revealed, position)
	e.fireEvent(GameEvent{
		Type: EventCardRevealed,
		Card: &EventCard{Position: position, Symbol: card.Symbol},
	})
	e.logAction("card_flip", map[string]interface{}{"position": position, "symbol": card.Symbol})

	if len(st.Revealed) == 2 {
		e.resolve()
	}
	return true
}

// Tick advances the countdown display and ends the round once time runs out.
// It is normally driven by the engine's own schedule.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick()
}

// Terminate ends the running round. Only the first call per round has effect;
// it reports whether this call ended the round.
func (e *Engine) Terminate(victory bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminate(victory)
}

// Reset discards the current round without producing an outcome and returns to idle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimers()
	e.generation++
	if e.state != nil && e.phase == PhaseRunning {
		e.logger().WithField("round", e.state.ID).Info("Round reset before completion")
		e.logAction("round_reset", nil)
	}
	e.state = nil
	e.outcome = nil
	e.phase = PhaseIdle
}

// Attach replaces the broadcast function, e.g. when the player reconnects.
func (e *Engine) Attach(fn func(ev GameEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BroadcastFn = fn
}

// Phase returns the current state machine position.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Snapshot returns a deep copy of the current round state.
func (e *Engine) Snapshot() (RoundState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return RoundState{}, false
	}
	cp := *e.state
	cp.Deck = append([]Card(nil), e.state.Deck...)
	cp.States = append([]CardState(nil), e.state.States...)
	cp.Revealed = append([]int(nil), e.state.Revealed...)
	return cp, true
}

// LastOutcome returns the outcome of the most recent finished round, if any.
func (e *Engine) LastOutcome() (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outcome == nil {
		return Outcome{}, false
	}
	return *e.outcome, true
}

// resolve compares the two revealed cards and schedules the settle continuation.
// Assumes lock is held and exactly two cards are revealed.
func (e *Engine) resolve() {
	st := e.state
	first, second := st.Revealed[0], st.Revealed[1]
	symbol := st.Deck[first].Symbol

	if symbol == st.Deck[second].Symbol {
		st.States[first] = Matched
		st.States[second] = Matched
		st.MatchedPairs++
		st.Score += e.Rules.MatchReward
		e.fireEvent(GameEvent{Type: EventCardMatched, Card: &EventCard{Position: first, Symbol: symbol}})
		e.fireEvent(GameEvent{Type: EventCardMatched, Card: &EventCard{Position: second, Symbol: symbol}})
		e.logAction("pair_match", map[string]interface{}{"positions": []int{first, second}, "score": st.Score})
	} else {
		st.Score -= e.Rules.MismatchPenalty
		if st.Score < 0 {
			st.Score = 0
		}
		e.logAction("pair_mismatch", map[string]interface{}{"positions": []int{first, second}, "score": st.Score})
	}
	e.fireEvent(GameEvent{Type: EventScoreChanged, Score: intPtr(st.Score)})

	gen := e.generation
	e.settle = e.clock().AfterFunc(e.Rules.SettleDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.generation || e.phase != PhaseRunning {
			return
		}
		e.settleRevealed()
	})
}

// settleRevealed hides unmatched revealed cards, releases the lock and checks for a win.
// Assumes lock is held.
func (e *Engine) settleRevealed() {
	st := e.state
	for _, pos := range st.Revealed {
		if st.States[pos] == FaceUp {
			st.States[pos] = FaceDown
			e.fireEvent(GameEvent{Type: EventCardHidden, Card: &EventCard{Position: pos}})
		}
	}
	st.Revealed = st.Revealed[:0]
	e.settle = nil
	e.checkWin()
}

// checkWin ends the round as a victory once every pair is matched.
// Assumes lock is held.
func (e *Engine) checkWin() bool {
	if e.state.MatchedPairs == e.Rules.Pairs() {
		return e.terminate(true)
	}
	return false
}

// tick assumes lock is held.
func (e *Engine) tick() {
	if e.phase != PhaseRunning {
		return
	}
	elapsed := e.elapsedSeconds()
	remaining := e.Rules.RoundSeconds() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	e.fireEvent(GameEvent{Type: EventTimerChanged, Remaining: intPtr(remaining)})
	if remaining > 0 {
		return
	}
	// A board completed inside the last settle window counts as a win.
	if e.checkWin() {
		return
	}
	e.terminate(false)
}

// scheduleTick arms the next countdown tick for the round identified by gen.
// Assumes lock is held.
func (e *Engine) scheduleTick(gen int) {
	e.countdown = e.clock().AfterFunc(tickInterval, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.generation || e.phase != PhaseRunning {
			return
		}
		e.tick()
		if e.phase == PhaseRunning {
			e.scheduleTick(gen)
		}
	})
}

// terminate assumes lock is held.
func (e *Engine) terminate(victory bool) bool {
	if e.phase != PhaseRunning {
		return false
	}
	e.phase = PhaseEnded
	e.stopTimers()

	st := e.state
	st.Ended = true
	out := Outcome{
		RoundID:        st.ID,
		PlayerName:     st.PlayerName,
		Victory:        victory,
		Score:          st.Score,
		ElapsedSeconds: e.elapsedSeconds(),
		MatchedPairs:   st.MatchedPairs,
		EndedAt:        e.clock().Now(),
	}
	e.outcome = &out

	e.logger().WithFields(logrus.Fields{
		"round":   out.RoundID,
		"player":  out.PlayerName,
		"victory": out.Victory,
		"score":   out.Score,
		"elapsed": out.ElapsedSeconds,
	}).Info("Round ended")
	e.logAction("round_end", map[string]interface{}{
		"victory": out.Victory,
		"score":   out.Score,
		"elapsed": out.ElapsedSeconds,
		"matched": out.MatchedPairs,
	})

	e.fireEvent(GameEvent{
		Type:    EventRoundEnded,
		Outcome: &out,
		Payload: map[string]interface{}{"message": out.Message()},
	})
	if e.OnRoundEnd != nil {
		e.OnRoundEnd(out)
	}
	return true
}

// stopTimers cancels the countdown and any pending settle continuation.
// Assumes lock is held.
func (e *Engine) stopTimers() {
	if e.countdown != nil {
		e.countdown.Stop()
		e.countdown = nil
	}
	if e.settle != nil {
		e.settle.Stop()
		e.settle = nil
	}
}

func (e *Engine) elapsedSeconds() int {
	return int(e.clock().Now().Sub(e.state.StartTime) / time.Second)
}

// fireEvent stamps the round id and hands the event to BroadcastFn.
// Assumes lock is held.
func (e *Engine) fireEvent(ev GameEvent) {
	if e.BroadcastFn == nil {
		return
	}
	if e.state != nil {
		ev.RoundID = e.state.ID
	}
	e.BroadcastFn(ev)
}

// logAction sends the action details to the historian queue via Redis.
// Assumes lock is held.
func (e *Engine) logAction(actionType string, payload map[string]interface{}) {
	if e.state == nil {
		return
	}
	e.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.RoundActionRecord{
		RoundID:       e.state.ID,
		ActionIndex:   e.actionIndex,
		PlayerName:    e.state.PlayerName,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     e.clock().Now().UnixMilli(),
	}
	if cache.Rdb == nil {
		return
	}
	logger := e.logger()
	go func(rec cache.RoundActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishRoundAction(ctx, rec); err != nil {
			logger.WithError(err).Warnf("Failed to publish action %d for round %s", rec.ActionIndex, rec.RoundID)
		}
	}(record)
}

func (e *Engine) clock() Clock {
	if e.Clock == nil {
		e.Clock = RealClock()
	}
	return e.Clock
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Logger == nil {
		e.Logger = logrus.StandardLogger()
	}
	return e.Logger
}
