// Package bluff 吹牛卡牌：出牌后开放质疑窗口，首个质疑者亮牌并重新计时
package bluff

import (
	"encoding/json"
	"slices"
	"time"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"go.uber.org/zap"
)

const (
	minPlayers = 2
	maxPlayers = 6

	minCard = 1
	maxCard = 5

	maxPlayCards = 4

	// DefaultHandSize 默认起手牌数
	DefaultHandSize = 5
	// DefaultChallengeWindow 默认质疑窗口
	DefaultChallengeWindow = 3 * time.Second

	// ActionChallenge 质疑动作
	ActionChallenge = "challenge"
)

var windowKey = game.TimerKey{Kind: game.TimerChallengeWindow}

// Option 规则可选项
type Option func(*Rules)

// WithHandSize 起手牌数
func WithHandSize(n int) Option {
	return func(r *Rules) {
		if n > 0 {
			r.handSize = n
		}
	}
}

// WithChallengeWindow 质疑窗口时长
func WithChallengeWindow(d time.Duration) Option {
	return func(r *Rules) {
		if d > 0 {
			r.window = d
		}
	}
}

// Rules 吹牛卡牌规则
type Rules struct {
	handSize int
	window   time.Duration
}

// New 创建规则
func New(opts ...Option) *Rules {
	r := &Rules{
		handSize: DefaultHandSize,
		window:   DefaultChallengeWindow,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Play 出牌消息，claim 只做展示，真假由服务端计算
type Play struct {
	Cards []int           `json:"cards"`
	Claim json.RawMessage `json:"claim,omitempty"`
}

// playRecord 写入历史的出牌结果，不含牌面
type playRecord struct {
	ClaimedCount int      `json:"claimedCount"`
	Target       int      `json:"target"`
	Challengers  []string `json:"challengers"`
	WasBluff     bool     `json:"wasBluff"`
	Discarded    bool     `json:"discarded,omitempty"`
}

// PrivateState 只发给本人的手牌
type PrivateState struct {
	PlayerID string `json:"playerId"`
	Hand     []int  `json:"hand"`
}

func (r *Rules) GameType() game.GameType { return game.GameTypeBluffCard }
func (r *Rules) Category() game.Category { return game.CategoryTurn }
func (r *Rules) MinPlayers() int         { return minPlayers }
func (r *Rules) MaxPlayers() int         { return maxPlayers }

func drawCard(rng game.RandSource) int {
	return rng.IntN(maxCard-minCard+1) + minCard
}

// Init 发牌并抽取第一回合的目标
func (r *Rules) Init(tc *game.TurnContext) error {
	s := tc.State
	hands := make(map[string][]int, len(s.PlayerIDs))
	for _, id := range s.PlayerIDs {
		hand := make([]int, r.handSize)
		for i := range hand {
			hand[i] = drawCard(tc.Rand)
		}
		hands[id] = hand
	}
	s.Turn.Bluff = &game.BluffData{
		PlayerHands:        hands,
		CurrentTarget:      drawCard(tc.Rand),
		ChallengingPlayers: []string{},
	}
	return nil
}

// OnTurnStart 每回合重新抽取目标
func (r *Rules) OnTurnStart(tc *game.TurnContext) {
	tc.State.Turn.Bluff.CurrentTarget = drawCard(tc.Rand)
}

func parsePlay(data json.RawMessage) (Play, error) {
	var p Play
	if err := json.Unmarshal(data, &p); err != nil {
		return p, apperrors.Wrap(err, apperrors.ErrInvalidMove, "出牌格式错误")
	}
	return p, nil
}

// ValidateMove 1-4 张牌，牌值合法且都在手牌中，且没有待结算的出牌
func (r *Rules) ValidateMove(s *game.GameState, userID string, data json.RawMessage) error {
	bd := s.Turn.Bluff
	if bd.ChallengeWindow {
		return apperrors.New(apperrors.ErrInvalidMove, "上一次出牌尚未结算")
	}
	p, err := parsePlay(data)
	if err != nil {
		return err
	}
	if len(p.Cards) < 1 || len(p.Cards) > maxPlayCards {
		return apperrors.Newf(apperrors.ErrInvalidMove, "每次出 1-%d 张牌", maxPlayCards)
	}
	if !containsAll(bd.PlayerHands[userID], p.Cards) {
		return apperrors.New(apperrors.ErrInvalidMove, "手牌中没有这些牌")
	}
	return nil
}

// containsAll cards 是否为 hand 的子多重集
func containsAll(hand, cards []int) bool {
	counts := make(map[int]int, len(hand))
	for _, c := range hand {
		counts[c]++
	}
	for _, c := range cards {
		if c < minCard || c > maxCard || counts[c] == 0 {
			return false
		}
		counts[c]--
	}
	return true
}

// ApplyMove 记录出牌并打开质疑窗口，回合等窗口结算后完成
func (r *Rules) ApplyMove(tc *game.TurnContext, userID string, data json.RawMessage) (game.ApplyResult, error) {
	p, err := parsePlay(data)
	if err != nil {
		return game.ApplyResult{}, err
	}
	bd := tc.State.Turn.Bluff

	truth := true
	for _, c := range p.Cards {
		if c != bd.CurrentTarget {
			truth = false
			break
		}
	}
	bd.PlayedCards = &game.PlayedCards{
		PlayerID:     userID,
		Cards:        slices.Clone(p.Cards),
		ClaimedCount: len(p.Cards),
		ActualTruth:  &truth,
	}
	bd.ChallengeWindow = true
	bd.ChallengingPlayers = []string{}
	bd.CurrentChallengeResult = nil
	tc.Schedule(windowKey, r.window)

	tc.Logger.Debug("出牌",
		zap.String("user_id", userID),
		zap.Int("count", len(p.Cards)),
		zap.Bool("truth", truth))
	return game.ApplyResult{Pending: true}, nil
}

// HandleAction 质疑。首个质疑者亮牌并重新计时
func (r *Rules) HandleAction(tc *game.TurnContext, userID, action string, data json.RawMessage) error {
	if action != ActionChallenge {
		return apperrors.Newf(apperrors.ErrUnsupportedAction, "未知动作: %s", action)
	}
	s := tc.State
	bd := s.Turn.Bluff
	if !bd.ChallengeWindow || bd.PlayedCards == nil {
		return apperrors.New(apperrors.ErrChallengeClosed)
	}
	if userID == bd.PlayedCards.PlayerID || s.IsDisconnected(userID) {
		return apperrors.New(apperrors.ErrCannotChallenge, userID)
	}
	if slices.Contains(bd.ChallengingPlayers, userID) {
		return apperrors.New(apperrors.ErrAlreadyChallenged, userID)
	}

	bd.ChallengingPlayers = append(bd.ChallengingPlayers, userID)
	if len(bd.ChallengingPlayers) == 1 {
		bd.PlayedCards.Revealed = true
		tc.Schedule(windowKey, r.window)
	}

	tc.Logger.Info("玩家质疑",
		zap.String("user_id", userID),
		zap.String("target", bd.PlayedCards.PlayerID),
		zap.Int("challengers", len(bd.ChallengingPlayers)))
	return nil
}

// HandleTimer 质疑窗口到期结算，窗口已关闭时为空操作
func (r *Rules) HandleTimer(tc *game.TurnContext, key game.TimerKey) error {
	if key.Kind != game.TimerChallengeWindow {
		return game.ErrNoChange
	}
	bd := tc.State.Turn.Bluff
	if !bd.ChallengeWindow || bd.PlayedCards == nil {
		return game.ErrNoChange
	}
	return r.resolve(tc)
}

// resolve 关闭窗口并结算，然后完成本回合
func (r *Rules) resolve(tc *game.TurnContext) error {
	bd := tc.State.Turn.Bluff
	play := bd.PlayedCards
	bd.ChallengeWindow = false

	record := playRecord{
		ClaimedCount: play.ClaimedCount,
		Target:       bd.CurrentTarget,
		Challengers:  slices.Clone(bd.ChallengingPlayers),
	}

	switch {
	case len(bd.ChallengingPlayers) == 0:
		bd.PlayerHands[play.PlayerID] = removeCards(bd.PlayerHands[play.PlayerID], play.Cards)
	case !play.Truthful():
		// 吹牛被抓：罚一张，打出的牌留在手里且不公开
		bd.PlayerHands[play.PlayerID] = append(bd.PlayerHands[play.PlayerID], drawCard(tc.Rand))
		play.Revealed = false
		record.WasBluff = true
		bd.CurrentChallengeResult = &game.ChallengeResult{
			PlayerID:        play.PlayerID,
			Challengers:     slices.Clone(bd.ChallengingPlayers),
			WasBluff:        true,
			PenaltyPlayerID: play.PlayerID,
			PenaltyCards:    1,
		}
	default:
		// 质疑失败：出牌正常移除，首个质疑者按出牌数罚牌，牌面保持公开直到下一次出牌
		challenger := bd.ChallengingPlayers[0]
		bd.PlayerHands[play.PlayerID] = removeCards(bd.PlayerHands[play.PlayerID], play.Cards)
		for range play.Cards {
			bd.PlayerHands[challenger] = append(bd.PlayerHands[challenger], drawCard(tc.Rand))
		}
		play.Revealed = true
		bd.CurrentChallengeResult = &game.ChallengeResult{
			PlayerID:        play.PlayerID,
			Challengers:     slices.Clone(bd.ChallengingPlayers),
			WasBluff:        false,
			PenaltyPlayerID: challenger,
			PenaltyCards:    len(play.Cards),
		}
	}

	tc.Logger.Info("质疑窗口结算",
		zap.String("user_id", play.PlayerID),
		zap.Bool("truth", play.Truthful()),
		zap.Strings("challengers", bd.ChallengingPlayers))

	tc.Cancel(windowKey)
	return tc.CompleteTurn(play.PlayerID, record)
}

// removeCards 按牌值各移除一张
func removeCards(hand, cards []int) []int {
	out := slices.Clone(hand)
	for _, c := range cards {
		if i := slices.Index(out, c); i >= 0 {
			out = slices.Delete(out, i, i+1)
		}
	}
	if out == nil {
		out = []int{}
	}
	return out
}

// CheckGameEnd 第一个手牌为空的玩家获胜
func (r *Rules) CheckGameEnd(s *game.GameState) game.EndResult {
	bd := s.Turn.Bluff
	for _, id := range s.PlayerIDs {
		if hand, ok := bd.PlayerHands[id]; ok && len(hand) == 0 {
			return game.EndResult{Ended: true, Winners: []string{id}, Reason: game.EndReasonEmptyHand}
		}
	}
	return game.EndResult{}
}

// ContinueOnLeave 剩余至少两人时继续
func (r *Rules) ContinueOnLeave(s *game.GameState, userID string) bool {
	return len(s.PlayerIDs)-1 >= minPlayers
}

// OnPlayerRemoved 收回手牌，丢弃该玩家待结算的出牌
func (r *Rules) OnPlayerRemoved(tc *game.TurnContext, userID string) {
	bd := tc.State.Turn.Bluff
	delete(bd.PlayerHands, userID)
	bd.ChallengingPlayers = slices.DeleteFunc(bd.ChallengingPlayers, func(id string) bool { return id == userID })

	if bd.PlayedCards != nil && bd.PlayedCards.PlayerID == userID {
		if bd.ChallengeWindow {
			tc.Logger.Info("出牌玩家离开，丢弃待结算的出牌", zap.String("user_id", userID))
			tc.Cancel(windowKey)
		}
		bd.PlayedCards = nil
		bd.ChallengeWindow = false
		bd.ChallengingPlayers = []string{}
		bd.CurrentChallengeResult = nil
	}
}

// PublicView 只公开手牌数量，未亮出的牌和目标不公开
func (r *Rules) PublicView(s *game.GameState) *game.GameState {
	view := s.Clone()
	bd := view.Turn.Bluff
	if bd == nil {
		return view
	}
	bd.HandCounts = make(map[string]int, len(bd.PlayerHands))
	for id, hand := range bd.PlayerHands {
		bd.HandCounts[id] = len(hand)
	}
	bd.PlayerHands = nil
	if view.IsPlaying() {
		bd.CurrentTarget = 0
	}
	if p := bd.PlayedCards; p != nil && !p.Revealed {
		p.Cards = nil
		p.ActualTruth = nil
	}
	return view
}

// PrivateView 本人手牌
func (r *Rules) PrivateView(s *game.GameState, userID string) any {
	bd := s.Turn.Bluff
	if bd == nil {
		return nil
	}
	hand, ok := bd.PlayerHands[userID]
	if !ok {
		return nil
	}
	return &PrivateState{PlayerID: userID, Hand: slices.Clone(hand)}
}
