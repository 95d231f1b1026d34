// Package room 房间调度：每个房间一个 goroutine 串行执行对该房间的全部操作，
// 同时为引擎提供按房间管理的计时器
package room

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/logger"
	"go.uber.org/zap"
)

var (
	// ErrClosed 调度器已关闭
	ErrClosed = errors.New("room: dispatcher closed")
	// ErrRoomStopped 房间在操作执行前被回收
	ErrRoomStopped = errors.New("room: stopped")
)

// TimerHandler 计时器到期的处理者，通常是 *game.Engine
type TimerHandler interface {
	HandleTimer(ctx context.Context, roomID string, key game.TimerKey) error
}

// Options 调度参数
type Options struct {
	InboxSize       int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		InboxSize:       64,
		IdleTimeout:     10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type command struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

type timerEntry struct {
	gen   uint64
	timer *time.Timer
}

// actor 单个房间
type actor struct {
	id    string
	inbox chan command
	quit  chan struct{}

	// 以下字段由 Dispatcher.mu 保护
	refs       int
	lastActive time.Time
	timers     map[game.TimerKey]*timerEntry
}

// Dispatcher 房间调度器，实现 game.Scheduler
type Dispatcher struct {
	opts    Options
	logger  *zap.Logger
	handler TimerHandler

	mu     sync.Mutex
	rooms  map[string]*actor
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

var _ game.Scheduler = (*Dispatcher)(nil)

// NewDispatcher 创建调度器
func NewDispatcher(opts Options, logger *zap.Logger) *Dispatcher {
	def := DefaultOptions()
	if opts.InboxSize <= 0 {
		opts.InboxSize = def.InboxSize
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		opts:   opts,
		logger: logger,
		rooms:  make(map[string]*actor),
	}
}

// Bind 设置计时器处理者，须在第一个计时器到期前调用
func (d *Dispatcher) Bind(h TimerHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Do 在房间的 goroutine 中执行 fn 并等待结果
func (d *Dispatcher) Do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error {
	a, err := d.acquire(roomID)
	if err != nil {
		return err
	}
	defer d.release(a)

	cmd := command{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case a.inbox <- cmd:
	case <-a.quit:
		return ErrRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-a.quit:
		return ErrRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post 把 fn 放入房间队列后立即返回，同一调用方投递的操作按顺序执行，错误只记录日志
func (d *Dispatcher) Post(roomID string, fn func(ctx context.Context) error) error {
	a, err := d.acquire(roomID)
	if err != nil {
		return err
	}

	cmd := command{ctx: context.Background(), fn: fn, done: make(chan error, 1)}
	select {
	case a.inbox <- cmd:
	case <-a.quit:
		d.release(a)
		return ErrRoomStopped
	}

	go func() {
		defer d.release(a)
		select {
		case err := <-cmd.done:
			if err != nil {
				d.logger.Warn("房间异步操作失败", zap.String("room_id", roomID), zap.Error(err))
			}
		case <-a.quit:
		}
	}()
	return nil
}

// acquire 获取（必要时创建）房间并增加引用
func (d *Dispatcher) acquire(roomID string) (*actor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	a := d.actorLocked(roomID)
	a.refs++
	return a, nil
}

func (d *Dispatcher) release(a *actor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a.refs--
	a.lastActive = time.Now()
}

func (d *Dispatcher) actorLocked(roomID string) *actor {
	if a, ok := d.rooms[roomID]; ok {
		return a
	}
	a := &actor{
		id:         roomID,
		inbox:      make(chan command, d.opts.InboxSize),
		quit:       make(chan struct{}),
		lastActive: time.Now(),
		timers:     make(map[game.TimerKey]*timerEntry),
	}
	d.rooms[roomID] = a
	d.wg.Add(1)
	go d.run(a)

	d.logger.Debug("房间已启动", zap.String("room_id", roomID))
	return a
}

func (d *Dispatcher) run(a *actor) {
	defer d.wg.Done()
	for {
		select {
		case <-a.quit:
			return
		case cmd := <-a.inbox:
			cmd.done <- d.exec(a, cmd)
		}
	}
}

// exec 执行一条命令，panic 转为错误，房间继续运行
func (d *Dispatcher) exec(a *actor, cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, debug.Stack(), zap.String("room_id", a.id))
			err = fmt.Errorf("room %s: panic: %v", a.id, r)
		}
	}()
	return cmd.fn(cmd.ctx)
}

// Schedule 实现 game.Scheduler，同 key 的旧计时器被替换
func (d *Dispatcher) Schedule(roomID string, key game.TimerKey, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	a := d.actorLocked(roomID)
	if old, ok := a.timers[key]; ok {
		old.timer.Stop()
	}
	d.gen++
	gen := d.gen
	a.timers[key] = &timerEntry{
		gen:   gen,
		timer: time.AfterFunc(dur, func() { d.fire(roomID, key, gen) }),
	}
}

// Cancel 实现 game.Scheduler
func (d *Dispatcher) Cancel(roomID string, key game.TimerKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.rooms[roomID]
	if !ok {
		return
	}
	if t, ok := a.timers[key]; ok {
		t.timer.Stop()
		delete(a.timers, key)
	}
}

// CancelAll 实现 game.Scheduler
func (d *Dispatcher) CancelAll(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.rooms[roomID]; ok {
		stopTimersLocked(a)
	}
}

func stopTimersLocked(a *actor) {
	for key, t := range a.timers {
		t.timer.Stop()
		delete(a.timers, key)
	}
}

// fire 计时器到期后投递到房间队列，代数不符（已取消或被替换）时忽略
func (d *Dispatcher) fire(roomID string, key game.TimerKey, gen uint64) {
	err := d.Do(context.Background(), roomID, func(ctx context.Context) error {
		d.mu.Lock()
		a := d.rooms[roomID]
		var current bool
		if a != nil {
			if t, ok := a.timers[key]; ok && t.gen == gen {
				delete(a.timers, key)
				current = true
			}
		}
		h := d.handler
		d.mu.Unlock()

		if !current || h == nil {
			return nil
		}
		return h.HandleTimer(ctx, roomID, key)
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		d.logger.Warn("计时器处理失败",
			zap.String("room_id", roomID),
			zap.String("timer", key.String()),
			zap.Error(err))
	}
}

// HasTimer 房间是否有该计时器
func (d *Dispatcher) HasTimer(roomID string, key game.TimerKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = a.timers[key]
	return ok
}

// Rooms 活跃房间数
func (d *Dispatcher) Rooms() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// Run 定期回收空闲房间，直到 ctx 结束
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := d.reap(now); n > 0 {
				d.logger.Info("回收空闲房间", zap.Int("count", n))
			}
		}
	}
}

// reap 回收没有进行中操作和计时器、且空闲超时的房间
func (d *Dispatcher) reap(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, a := range d.rooms {
		if a.refs > 0 || len(a.timers) > 0 || now.Sub(a.lastActive) < d.opts.IdleTimeout {
			continue
		}
		close(a.quit)
		delete(d.rooms, id)
		n++
	}
	return n
}

// Close 停止全部房间并等待 goroutine 退出
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id, a := range d.rooms {
		stopTimersLocked(a)
		close(a.quit)
		delete(d.rooms, id)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("房间调度器已关闭")
}
