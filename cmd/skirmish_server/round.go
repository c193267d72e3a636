package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dumfing/skirmish/internal/api"
	"github.com/dumfing/skirmish/internal/config"
	"github.com/dumfing/skirmish/internal/entity"
	"github.com/dumfing/skirmish/internal/game"
	"github.com/dumfing/skirmish/internal/storage"
	"github.com/dumfing/skirmish/internal/worker"
	"github.com/dumfing/skirmish/pkg/core"
)

const uploadTimeout = 2 * time.Minute

// roundRecorder opens and closes recordings as the game changes state.
type roundRecorder struct {
	game    *game.Instance
	worker  *worker.Manager
	backend storage.Backend
	uploads *api.Client // nil disables uploads
	cfg     config.ServerConfig
	level   core.Level

	wg sync.WaitGroup
}

// onStateChange runs on the tick goroutine. Starting a recording blocks
// the tick so no record of the first playing tick is lost; closing one
// does not.
func (rr *roundRecorder) onStateChange(from, to game.State) {
	RoundContext.SetState(to.String())

	switch to {
	case game.StatePlaying:
		rr.startRound()
	case game.StateRoundOver:
		rr.wg.Add(1)
		go rr.endRound()
	}
}

func (rr *roundRecorder) startRound() {
	w := rr.game.World()
	now := time.Now()

	r := &core.Round{
		ServerName:    rr.cfg.Name,
		LevelName:     rr.level.Name,
		StartTime:     now,
		TickRate:      rr.game.Config().TickRate,
		MaxPlayers:    rr.game.Config().MaxPlayers,
		ServerVersion: Version,
		Tag:           rr.cfg.Tag,
	}
	l := rr.level

	var players []core.Player
	w.EachSoldier(func(s *entity.Soldier) {
		players = append(players, core.Player{
			ConnID:   s.ID,
			Name:     s.Name,
			Team:     s.Team,
			Class:    s.Class,
			JoinTick: w.Tick(),
			JoinTime: now,
		})
	})

	if err := rr.worker.StartRound(r, &l, players); err != nil {
		Logger.Error("Failed to start round recording", "error", err)
		return
	}
	RoundContext.SetRound(r, &l)
}

func (rr *roundRecorder) endRound() {
	defer rr.wg.Done()
	defer sentry.Recover()

	if err := rr.worker.EndRound(); err != nil {
		Logger.Error("Failed to end round recording", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Log flush failed", "error", err)
	}
	if err := OTelProvider.Flush(ctx); err != nil {
		Logger.Warn("OTel flush failed", "error", err)
	}

	rr.upload()
}

// upload sends the exported replay when the backend produces files.
func (rr *roundRecorder) upload() {
	u, ok := rr.backend.(storage.Uploadable)
	if !ok || rr.uploads == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	start := time.Now()
	err := rr.uploads.UploadFrom(ctx, u)
	switch {
	case errors.Is(err, api.ErrNothingToUpload):
		Logger.Debug("No replay to upload")
	case err != nil:
		Logger.Error("Failed to upload replay", "error", err, "path", u.GetExportedFilePath())
	default:
		Logger.Info("Replay uploaded", "path", u.GetExportedFilePath(), "duration", time.Since(start))
	}
}

// wait blocks until every round that ended has been closed and uploaded.
func (rr *roundRecorder) wait() {
	rr.wg.Wait()
}
