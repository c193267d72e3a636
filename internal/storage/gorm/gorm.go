// Package gormstorage implements storage.Backend on top of any GORM dialect.
// Records are converted on arrival, stamped with the current round and
// pushed to one queue per table. A background writer drains the queues into
// the database on a fixed interval.
package gormstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dumfing/skirmish/internal/cache"
	"github.com/dumfing/skirmish/internal/logging"
	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/internal/model/convert"
	"github.com/dumfing/skirmish/internal/queue"
	"github.com/dumfing/skirmish/internal/round"
	"github.com/dumfing/skirmish/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// ErrNoRound is returned when a record arrives before StartRound.
var ErrNoRound = errors.New("no round in progress")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	PlayerCache   *cache.PlayerCache
	LevelCache    *cache.LevelCache
	LogManager    *logging.SlogManager
	RoundContext  *round.Context
	FlushInterval time.Duration
	// Settings is stored as JSON with every round row.
	Settings any
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Players          *queue.Queue[model.Player]
	SoldierStates    *queue.Queue[model.SoldierState]
	ProjectileEvents *queue.Queue[model.ProjectileEvent]
	HitEvents        *queue.Queue[model.HitEvent]
	ChatEvents       *queue.Queue[model.ChatEvent]
	TeamPicks        *queue.Queue[model.TeamPick]
	TickStats        *queue.Queue[model.TickStat]
}

func newQueues() *queues {
	return &queues{
		Players:          queue.New[model.Player](),
		SoldierStates:    queue.New[model.SoldierState](),
		ProjectileEvents: queue.New[model.ProjectileEvent](),
		HitEvents:        queue.New[model.HitEvent](),
		ChatEvents:       queue.New[model.ChatEvent](),
		TeamPicks:        queue.New[model.TeamPick](),
		TickStats:        queue.New[model.TickStat](),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	roundID  atomic.Uint64
	stopChan chan struct{}
	done     chan struct{}

	// flushMu serializes writer cycles with EndRound's final flush
	flushMu       sync.Mutex
	lastWriteNano atomic.Int64
}

// New creates a new GORM storage backend. Missing caches are created.
func New(deps Dependencies) *Backend {
	if deps.PlayerCache == nil {
		deps.PlayerCache = cache.NewPlayerCache()
	}
	if deps.LevelCache == nil {
		deps.LevelCache = cache.NewLevelCache()
	}
	if deps.RoundContext == nil {
		deps.RoundContext = round.NewContext()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues and starts the DB writer goroutine.
// Without a DB the backend only queues, which is what the unit tests use.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
		close(b.stopChan)
	}
	<-b.done
	return b.Flush()
}

// StartRound stores the level (once per checksum) and inserts the round row.
func (b *Backend) StartRound(r *core.Round, l *core.Level) error {
	b.deps.PlayerCache.Reset()
	b.deps.RoundContext.SetRound(r, l)

	if b.deps.DB == nil {
		b.roundID.Add(1)
		r.ID = uint(b.roundID.Load())
		return nil
	}
	db := b.deps.DB

	gormLevel := convert.CoreToLevel(*l)
	if id, ok := b.deps.LevelCache.Get(gormLevel.Checksum); ok {
		gormLevel.ID = id
	} else {
		if _, err := gormLevel.GetOrInsert(db); err != nil {
			return fmt.Errorf("failed to get or insert level: %w", err)
		}
		b.deps.LevelCache.Set(gormLevel.Checksum, gormLevel.ID)
	}

	gormRound := convert.CoreToRound(*r, gormLevel.ID, b.deps.Settings)
	if err := db.Create(&gormRound).Error; err != nil {
		return fmt.Errorf("failed to insert new round: %w", err)
	}

	r.ID = gormRound.ID
	l.ID = gormLevel.ID
	b.roundID.Store(uint64(gormRound.ID))
	b.deps.LogManager.Logger().Info("Round recording started", "round", r.ID, "level", l.Name)
	return nil
}

// SetRoundID points subsequent records at an existing round (used by CLI tools).
func (b *Backend) SetRoundID(id uint) {
	b.roundID.Store(uint64(id))
}

// RoundID returns the round records are currently stamped with.
func (b *Backend) RoundID() uint {
	return uint(b.roundID.Load())
}

// EndRound writes everything still queued and stamps the round's end time.
func (b *Backend) EndRound() error {
	id := b.RoundID()
	if id == 0 {
		return ErrNoRound
	}
	if err := b.Flush(); err != nil {
		return err
	}
	if b.deps.DB != nil {
		err := b.deps.DB.Model(&model.Round{}).Where("id = ?", id).
			Update("end_time", sql.NullTime{Time: time.Now(), Valid: true}).Error
		if err != nil {
			return fmt.Errorf("failed to close round %d: %w", id, err)
		}
	}
	b.deps.LogManager.Logger().Info("Round recording finished", "round", id)
	return nil
}

// AddPlayer assigns the player's storage id and queues it. Rejoins are not
// inserted again.
func (b *Backend) AddPlayer(p *core.Player) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	if !b.deps.PlayerCache.Register(p) {
		return nil
	}
	gormObj := convert.CoreToPlayer(*p)
	gormObj.RoundID = roundID
	return b.queues.Players.Push(gormObj)
}

// RecordSoldierState converts and queues a soldier state.
func (b *Backend) RecordSoldierState(s *core.SoldierState) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToSoldierState(*s)
	gormObj.RoundID = roundID
	return b.queues.SoldierStates.Push(gormObj)
}

// RecordProjectileEvent converts and queues a finished projectile.
func (b *Backend) RecordProjectileEvent(e *core.ProjectileEvent) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToProjectileEvent(*e)
	gormObj.RoundID = roundID
	return b.queues.ProjectileEvents.Push(gormObj)
}

// RecordHitEvent converts and queues a hit event.
func (b *Backend) RecordHitEvent(e *core.HitEvent) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToHitEvent(*e)
	gormObj.RoundID = roundID
	return b.queues.HitEvents.Push(gormObj)
}

// RecordChatEvent converts and queues a chat event.
func (b *Backend) RecordChatEvent(e *core.ChatEvent) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToChatEvent(*e)
	gormObj.RoundID = roundID
	return b.queues.ChatEvents.Push(gormObj)
}

// RecordTeamPick converts and queues a team pick.
func (b *Backend) RecordTeamPick(e *core.TeamPickEvent) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	b.deps.PlayerCache.SetTeam(e.ConnID, e.Team)
	gormObj := convert.CoreToTeamPick(*e)
	gormObj.RoundID = roundID
	return b.queues.TeamPicks.Push(gormObj)
}

// RecordTickStats converts and queues a tick sample.
func (b *Backend) RecordTickStats(s *core.TickStats) error {
	roundID, err := b.currentRound()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToTickStat(*s)
	gormObj.RoundID = roundID
	return b.queues.TickStats.Push(gormObj)
}

func (b *Backend) currentRound() (uint, error) {
	id := b.RoundID()
	if id == 0 {
		return 0, ErrNoRound
	}
	return id, nil
}

// QueueLengths reports the backlog of every write queue.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	if b.queues == nil {
		return model.WriteQueueLengths{}
	}
	return model.WriteQueueLengths{
		Players:          b.queues.Players.Len(),
		SoldierStates:    b.queues.SoldierStates.Len(),
		ProjectileEvents: b.queues.ProjectileEvents.Len(),
		HitEvents:        b.queues.HitEvents.Len(),
		ChatEvents:       b.queues.ChatEvents.Len(),
		TeamPicks:        b.queues.TeamPicks.Len(),
		TickStats:        b.queues.TickStats.Len(),
	}
}

// LastWriteDuration is how long the most recent flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWriteNano.Load())
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, upsert bool) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if upsert {
			tx = tx.Clauses(clause.OnConflict{DoNothing: true})
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		q.Requeue(items)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return nil
}

// Flush drains every queue into the database once. Players go first so the
// other rows never reference a missing player.
func (b *Backend) Flush() error {
	if b.deps.DB == nil || b.queues == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	db := b.deps.DB
	errs := []error{
		writeQueue(db, b.queues.Players, "players", true),
		writeQueue(db, b.queues.TeamPicks, "team picks", false),
		writeQueue(db, b.queues.SoldierStates, "soldier states", false),
		writeQueue(db, b.queues.ProjectileEvents, "projectile events", false),
		writeQueue(db, b.queues.HitEvents, "hit events", false),
		writeQueue(db, b.queues.ChatEvents, "chat events", false),
		writeQueue(db, b.queues.TickStats, "tick stats", false),
	}
	b.lastWriteNano.Store(int64(time.Since(start)))
	return errors.Join(errs...)
}

// writerLoop periodically drains queues into the DB until Close.
func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.LogManager.Logger().Error("DB write failed", "error", err)
			}
		}
	}
}
